package app

import (
	"context"
	"errors"
	"hash/fnv"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"proficiency-exam-service/internal/domain"
)

// PublicationController owns the active-exam pointer. It is the only writer of
// publication state; template edits never touch it.
type PublicationController struct {
	templates TemplateRepository
	pointer   PublicationStore
	settings  *SettingsService
	opts      options

	edits sync.Mutex // held while a template is validated for, or edited under, publication
}

func NewPublicationController(templates TemplateRepository, pointer PublicationStore, settings *SettingsService, opts ...Option) *PublicationController {
	return &PublicationController{templates: templates, pointer: pointer, settings: settings, opts: buildOptions(opts)}
}

// Publish makes id the active exam and unpublishes every other template.
// A lost race on the pointer is reported as domain.ErrConflict.
func (c *PublicationController) Publish(ctx context.Context, id string) (domain.ExamTemplate, error) {
	c.edits.Lock()
	defer c.edits.Unlock()

	t, err := c.templates.Get(ctx, id)
	if err != nil {
		return domain.ExamTemplate{}, err
	}
	t.RecomputeTotals()
	if err := validateTemplate(t, true); err != nil {
		return domain.ExamTemplate{}, err
	}

	cur, err := c.pointer.Current(ctx)
	if err != nil {
		return domain.ExamTemplate{}, err
	}
	next, err := c.pointer.Swap(ctx, cur.Version, id)
	if err != nil {
		return domain.ExamTemplate{}, err
	}
	if err := c.templates.SyncPublished(ctx, next.TemplateID, next.Version); err != nil {
		return domain.ExamTemplate{}, err
	}

	c.opts.log.Info("template published",
		zap.String("template_id", id),
		zap.String("previous_template_id", cur.TemplateID),
		zap.Int64("version", next.Version),
	)
	t.IsPublished = true
	return t, nil
}

// holdEdits blocks Publish until the returned func is called and reports whether id
// is the active exam. The pointer is consulted because template flags trail it.
func (c *PublicationController) holdEdits(ctx context.Context, id string) (bool, func(), error) {
	c.edits.Lock()
	cur, err := c.pointer.Current(ctx)
	if err != nil {
		c.edits.Unlock()
		return false, nil, err
	}
	return cur.TemplateID == id, c.edits.Unlock, nil
}

// Unpublish clears the active pointer if it references id and marks id as a draft.
func (c *PublicationController) Unpublish(ctx context.Context, id string) (domain.ExamTemplate, error) {
	t, err := c.templates.Get(ctx, id)
	if err != nil {
		return domain.ExamTemplate{}, err
	}
	cur, err := c.pointer.Current(ctx)
	if err != nil {
		return domain.ExamTemplate{}, err
	}
	if cur.TemplateID == id {
		next, err := c.pointer.Swap(ctx, cur.Version, "")
		if err != nil {
			return domain.ExamTemplate{}, err
		}
		if err := c.templates.SyncPublished(ctx, "", next.Version); err != nil {
			return domain.ExamTemplate{}, err
		}
		c.opts.log.Info("template unpublished", zap.String("template_id", id), zap.Int64("version", next.Version))
	}
	t.IsPublished = false
	return t, nil
}

// Active returns the published template and its effective settings.
func (c *PublicationController) Active(ctx context.Context) (domain.ExamTemplate, domain.EffectiveSettings, error) {
	cur, err := c.pointer.Current(ctx)
	if err != nil {
		return domain.ExamTemplate{}, domain.EffectiveSettings{}, err
	}
	if !cur.Active() {
		return domain.ExamTemplate{}, domain.EffectiveSettings{}, domain.ErrNoActiveExam
	}
	t, err := c.templates.Get(ctx, cur.TemplateID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ExamTemplate{}, domain.EffectiveSettings{}, domain.ErrNoActiveExam
	}
	if err != nil {
		return domain.ExamTemplate{}, domain.EffectiveSettings{}, err
	}
	defaults, err := c.settings.ExamSettings(ctx)
	if err != nil {
		return domain.ExamTemplate{}, domain.EffectiveSettings{}, err
	}
	t.IsPublished = true
	return t, domain.Resolve(t.Settings, defaults), nil
}

// Reconcile re-applies the pointer to the template flags, e.g. after a crash between
// a pointer swap and the flag sync.
func (c *PublicationController) Reconcile(ctx context.Context) error {
	cur, err := c.pointer.Current(ctx)
	if err != nil {
		return err
	}
	return c.templates.SyncPublished(ctx, cur.TemplateID, cur.Version)
}

// StudentView strips answer keys and, when the template asks for it, orders questions
// within each section deterministically per student.
func StudentView(t domain.ExamTemplate, eff domain.EffectiveSettings, studentID string) domain.ExamTemplate {
	out := t.Clone()
	var rnd *rand.Rand
	if eff.ShuffleQuestions {
		h := fnv.New64a()
		_, _ = h.Write([]byte(t.ID + ":" + studentID))
		rnd = rand.New(rand.NewSource(int64(h.Sum64())))
	}
	for si := range out.Sections {
		qs := out.Sections[si].Questions
		for qi := range qs {
			qs[qi] = qs[qi].WithoutAnswer()
		}
		if rnd != nil {
			rnd.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
		}
	}
	return out
}
