package app

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Option customizes services; mostly used by tests for deterministic clocks and ids.
type Option func(*options)

type options struct {
	now   func() time.Time
	newID func() string
	log   *zap.Logger
}

func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }
func WithIDs(newID func() string) Option    { return func(o *options) { o.newID = newID } }
func WithLogger(log *zap.Logger) Option     { return func(o *options) { o.log = log } }

func buildOptions(opts []Option) options {
	o := options{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
		log:   zap.NewNop(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
