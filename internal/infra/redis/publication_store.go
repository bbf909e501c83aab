package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"proficiency-exam-service/internal/domain"
)

const publicationKey = "exam:publication"

// PublicationStore keeps the active-template pointer in a Redis hash so every
// instance agrees on it. Swap is a WATCH/MULTI compare-and-swap on the version field.
type PublicationStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewPublicationStore(client *redis.Client) *PublicationStore {
	return &PublicationStore{client: client, now: time.Now}
}

func (s *PublicationStore) Current(ctx context.Context) (domain.Publication, error) {
	return readPublication(ctx, s.client)
}

func (s *PublicationStore) Swap(ctx context.Context, expected int64, templateID string) (domain.Publication, error) {
	var next domain.Publication
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := readPublication(ctx, tx)
		if err != nil {
			return err
		}
		if cur.Version != expected {
			return domain.ErrConflict
		}
		next = domain.Publication{
			TemplateID: templateID,
			Version:    expected + 1,
			UpdatedAt:  s.now().UTC(),
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, publicationKey,
				"template", next.TemplateID,
				"version", next.Version,
				"updated", next.UpdatedAt.Format(time.RFC3339Nano),
			)
			return nil
		})
		return err
	}, publicationKey)
	if errors.Is(err, redis.TxFailedErr) {
		return domain.Publication{}, domain.ErrConflict
	}
	if err != nil {
		return domain.Publication{}, err
	}
	return next, nil
}

func readPublication(ctx context.Context, c redis.Cmdable) (domain.Publication, error) {
	vals, err := c.HGetAll(ctx, publicationKey).Result()
	if err != nil {
		return domain.Publication{}, fmt.Errorf("read publication: %w", err)
	}
	if len(vals) == 0 {
		return domain.Publication{}, nil
	}
	p := domain.Publication{TemplateID: vals["template"]}
	if v := vals["version"]; v != "" {
		p.Version, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return domain.Publication{}, fmt.Errorf("parse publication version: %w", err)
		}
	}
	if u := vals["updated"]; u != "" {
		p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, u)
	}
	return p, nil
}
