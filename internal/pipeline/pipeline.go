// Package pipeline runs the conversation triage loop: scan the inbox,
// derive tracking codes, wait for pending campaign-letter decisions, and
// merge the codes into each conversation's annotation field.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/inboxops/autotag/internal/config"
	"github.com/inboxops/autotag/internal/inbox"
	"github.com/inboxops/autotag/internal/model"
	"github.com/inboxops/autotag/internal/nomenclature"
	"github.com/inboxops/autotag/internal/resilience"
	"github.com/inboxops/autotag/pkg/alerts"
)

// PanelResolver maps raw UI panel names to panel ids.
type PanelResolver interface {
	Resolve(ctx context.Context, rawName string) (model.Resolution, bool)
}

// LetterResolver answers campaign-letter lookups. GetLetter enqueues
// unknown URLs for a human decision; Peek never does.
type LetterResolver interface {
	GetLetter(ctx context.Context, url, panelName string) (string, bool, error)
	Peek(ctx context.Context, url string) (string, bool, error)
	OnAllResolved(fn func())
	QueueLen() int
}

// AuditRecorder persists the code→panel audit map.
type AuditRecorder interface {
	SaveAudit(ctx context.Context, code, panelName string) error
}

// Pipeline orchestrates one inbox at a time. It is not safe for
// concurrent Run calls.
type Pipeline struct {
	cfg       config.PipelineConfig
	inspector inbox.Inspector
	automator inbox.Automator
	panels    PanelResolver
	letters   LetterResolver
	builder   *nomenclature.Builder
	audit     AuditRecorder
	alerter   alerts.Client
	now       func() time.Time

	// alerted de-duplicates locked-account alerts per panel within one
	// batch pass.
	alerted map[string]bool
}

// New creates a Pipeline with all dependencies. audit and alerter may be
// nil; the corresponding side effects are then skipped.
func New(
	cfg config.PipelineConfig,
	inspector inbox.Inspector,
	automator inbox.Automator,
	panels PanelResolver,
	letters LetterResolver,
	builder *nomenclature.Builder,
	audit AuditRecorder,
	alerter alerts.Client,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		inspector: inspector,
		automator: automator,
		panels:    panels,
		letters:   letters,
		builder:   builder,
		audit:     audit,
		alerter:   alerter,
		now:       time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Run loops batch passes separated by the restart interval until the
// context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	log := zap.L()
	for {
		if err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("pipeline: batch pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.RestartInterval()):
		}
	}
}

// visitOutcome classifies what a conversation visit did.
type visitOutcome int

const (
	outcomeSkipped visitOutcome = iota
	outcomeTagged
	outcomeUnchanged
	outcomeAwaiting
)

// RunOnce executes a single batch pass. Conversations are visited
// strictly in order: a conversation blocked on letter decisions suspends
// the pass until the queue drains, then is revisited before the next one
// is opened.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	log := zap.L()
	p.alerted = make(map[string]bool)

	ids, err := p.inspector.ListConversations(ctx)
	if err != nil {
		return eris.Wrap(err, "pipeline: list conversations")
	}
	log.Info("pipeline: batch pass starting", zap.Int("conversations", len(ids)))

	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		outcome, err := p.visit(ctx, id, true)
		if err != nil {
			log.Warn("pipeline: conversation visit failed",
				zap.String("conversation", id), zap.Error(err))
			continue
		}
		if outcome != outcomeAwaiting {
			continue
		}

		log.Info("pipeline: waiting for letter decisions",
			zap.String("conversation", id),
			zap.Int("queued_urls", p.letters.QueueLen()))
		if err := p.awaitResolution(ctx); err != nil {
			return err
		}
		if _, err := p.visit(ctx, id, false); err != nil {
			log.Warn("pipeline: conversation revisit failed",
				zap.String("conversation", id), zap.Error(err))
		}
	}

	log.Info("pipeline: batch pass complete")
	return nil
}

// awaitResolution blocks until every queued URL has a decision or the
// context ends.
func (p *Pipeline) awaitResolution(ctx context.Context) error {
	done := make(chan struct{})
	p.letters.OnAllResolved(func() { close(done) })

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// visit processes one conversation. On the first pass unknown referral
// URLs are enqueued for a decision and the visit reports outcomeAwaiting;
// on the revisit still-undecided URLs are dropped instead.
func (p *Pipeline) visit(ctx context.Context, id string, enqueue bool) (visitOutcome, error) {
	log := zap.L().With(zap.String("conversation", id))

	conv, err := p.inspector.ReadConversation(ctx, id)
	if err != nil {
		return outcomeSkipped, eris.Wrap(err, "pipeline: read conversation")
	}

	res, resolved := p.panels.Resolve(ctx, conv.PanelName)
	ex := extract(conv, p.builder.Location())

	if ex.locked {
		p.sendLockedAlert(ctx, conv, res, resolved)
		log.Info("pipeline: account locked, skipping", zap.String("panel", conv.PanelName))
		return outcomeSkipped, nil
	}
	if !resolved {
		// Unknown panels degrade to id 0 instead of losing the visit.
		log.Warn("pipeline: unresolved panel, tagging with id 0",
			zap.String("panel", conv.PanelName))
		res = model.Resolution{ID: 0, Name: conv.PanelName}
	}

	if dropped := p.filterReferrals(&ex); dropped > 0 {
		log.Debug("pipeline: referrals outside date policy dropped",
			zap.Int("dropped", dropped))
	}
	if len(ex.referrals) == 0 && !p.dateUsable(ex.firstMsg) {
		log.Debug("pipeline: no referrals and no usable date, skipping")
		return outcomeSkipped, nil
	}

	letters := make(map[string]string, len(ex.referrals))
	unresolved := 0
	for _, ref := range ex.referrals {
		var letter string
		var ok bool
		if enqueue {
			letter, ok, err = p.letters.GetLetter(ctx, ref.URL, res.Name)
		} else {
			letter, ok, err = p.letters.Peek(ctx, ref.URL)
		}
		if err != nil {
			return outcomeSkipped, eris.Wrap(err, "pipeline: letter lookup")
		}
		if !ok {
			unresolved++
			continue
		}
		letters[ref.URL] = letter
	}

	if unresolved > 0 && enqueue {
		return outcomeAwaiting, nil
	}
	if unresolved > 0 {
		log.Info("pipeline: dropping undecided referrals",
			zap.Int("dropped", unresolved))
	}

	codes := p.buildCodes(ex, res, letters)
	if len(codes) == 0 {
		return outcomeSkipped, nil
	}
	return p.tag(ctx, conv, res, codes)
}

// filterReferrals keeps only referrals whose observed time passes the
// configured date policy, returning how many were dropped.
func (p *Pipeline) filterReferrals(ex *extraction) int {
	kept := ex.referrals[:0]
	for _, ref := range ex.referrals {
		if p.dateUsable(ref.Observed) {
			kept = append(kept, ref)
		}
	}
	dropped := len(ex.referrals) - len(kept)
	ex.referrals = kept
	return dropped
}

// dateUsable applies the configured date policy to a message timestamp.
func (p *Pipeline) dateUsable(info model.TimeInfo) bool {
	switch p.cfg.DatePolicy {
	case config.DatePolicyToday:
		return inbox.SameLocalDay(info, p.now(), p.builder.Location())
	default:
		return info.Parseable()
	}
}

// buildCodes derives one code per decided referral, or a single
// letterless code when the conversation had no referrals at all. The
// settlement marker rides on the first code only.
func (p *Pipeline) buildCodes(ex extraction, res model.Resolution, letters map[string]string) []nomenclature.Code {
	base := p.builder.Base(res.ID, p.now())

	if len(ex.referrals) == 0 {
		return []nomenclature.Code{{Base: base, Settled: ex.settled}}
	}

	var codes []nomenclature.Code
	for _, ref := range ex.referrals {
		letter, ok := letters[ref.URL]
		if !ok {
			continue
		}
		codes = append(codes, nomenclature.Code{
			Base:    base,
			Letter:  letter,
			Settled: ex.settled && len(codes) == 0,
		})
	}
	return codes
}

// tag merges the derived codes into the annotation field, retrying the
// write a bounded number of times.
func (p *Pipeline) tag(ctx context.Context, conv model.Conversation, res model.Resolution, codes []nomenclature.Code) (visitOutcome, error) {
	log := zap.L().With(zap.String("conversation", conv.ID))

	if err := p.automator.Open(ctx, conv.ID); err != nil {
		return outcomeSkipped, eris.Wrap(err, "pipeline: open conversation")
	}
	existing, err := p.automator.ReadAnnotation(ctx, conv.ID)
	if err != nil {
		return outcomeSkipped, eris.Wrap(err, "pipeline: read annotation")
	}

	merged, changed := nomenclature.Merge(existing, codes)
	if !changed {
		return outcomeUnchanged, nil
	}

	retryCfg := resilience.RetryConfig{
		MaxAttempts: p.cfg.WriteRetries,
		OnRetry:     resilience.RetryLogger("write annotation"),
	}
	err = resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
		return p.automator.WriteAnnotation(ctx, conv.ID, merged)
	})
	if err != nil {
		return outcomeSkipped, eris.Wrap(err, "pipeline: write annotation")
	}

	log.Info("pipeline: conversation tagged",
		zap.String("panel", res.Name),
		zap.Int("codes", len(codes)))

	if p.audit != nil {
		if err := p.audit.SaveAudit(ctx, codes[0].Render(), res.Name); err != nil {
			log.Warn("pipeline: audit save failed", zap.Error(err))
		}
	}
	return outcomeTagged, nil
}

// sendLockedAlert fires one account-locked alert per panel per batch
// pass. Failures are logged and dropped; the alert channel never retries.
func (p *Pipeline) sendLockedAlert(ctx context.Context, conv model.Conversation, res model.Resolution, resolved bool) {
	if p.alerter == nil {
		return
	}
	panelName := conv.PanelName
	if resolved {
		panelName = res.Name
	}
	if p.alerted[panelName] {
		return
	}
	p.alerted[panelName] = true

	alert := alerts.Alert{
		ID:        uuid.NewString(),
		Name:      panelName,
		Numbers:   []string{conv.ID},
		Timestamp: p.now().UTC(),
		Type:      alerts.TypeAccountLocked,
	}
	if err := p.alerter.Send(ctx, alert); err != nil {
		zap.L().Warn("pipeline: locked-account alert failed",
			zap.String("panel", panelName), zap.Error(err))
	}
}
