// Package letters runs the human-in-the-loop queue that assigns a
// campaign letter to each referral URL the pipeline has not seen before.
package letters

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/inboxops/autotag/internal/model"
)

// ErrNoActiveItem is returned by Assign and Skip when the queue is empty.
var ErrNoActiveItem = eris.New("letters: no item awaiting a decision")

var letterPattern = regexp.MustCompile(`^[A-Z]$`)

// Prompter receives queue events. Present is called once per item when
// it becomes the active one; Drained is called when the last pending
// item has been decided.
type Prompter interface {
	Present(item model.QueueItem)
	Drained()
}

// MappingStore is the subset of the store the resolver needs.
type MappingStore interface {
	GetLetter(ctx context.Context, url string) (string, bool, error)
	PutLetterIfAbsent(ctx context.Context, url, letter string) (bool, error)
}

// Resolver owns the FIFO of unresolved URLs. At most one item is
// "active" (presented to the prompter) at a time; decisions arrive via
// Assign or Skip.
type Resolver struct {
	store    MappingStore
	prompter Prompter
	now      func() time.Time

	mu            sync.Mutex
	queue         []model.QueueItem
	queued        map[string]bool
	onAllResolved func()
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a Resolver backed by the given mapping store.
func NewResolver(store MappingStore, prompter Prompter, opts ...Option) *Resolver {
	r := &Resolver{
		store:    store,
		prompter: prompter,
		now:      time.Now,
		queued:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetLetter returns the stored letter for a URL. When no mapping exists
// the URL joins the decision queue (at most once) and ok is false.
func (r *Resolver) GetLetter(ctx context.Context, url, panelName string) (string, bool, error) {
	letter, ok, err := r.store.GetLetter(ctx, url)
	if err != nil {
		return "", false, err
	}
	if ok {
		return letter, true, nil
	}

	r.mu.Lock()
	var present *model.QueueItem
	if !r.queued[url] {
		item := model.QueueItem{URL: url, PanelName: panelName, EnqueuedAt: r.now()}
		r.queue = append(r.queue, item)
		r.queued[url] = true
		if len(r.queue) == 1 {
			present = &item
		}
	}
	r.mu.Unlock()

	// Present after releasing the lock so a prompter that answers
	// synchronously can call Assign without deadlocking.
	if present != nil {
		r.prompter.Present(*present)
	}
	return "", false, nil
}

// Peek returns the stored letter without enqueuing on a miss.
func (r *Resolver) Peek(ctx context.Context, url string) (string, bool, error) {
	return r.store.GetLetter(ctx, url)
}

// Assign records the decision for the active item. The letter must be a
// single A–Z character (lowercase input is accepted); anything else is
// rejected and the item stays active.
func (r *Resolver) Assign(ctx context.Context, letter string) error {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if !letterPattern.MatchString(letter) {
		return eris.Errorf("letters: %q is not a single A-Z letter", letter)
	}

	r.mu.Lock()
	if len(r.queue) == 0 {
		r.mu.Unlock()
		return ErrNoActiveItem
	}
	item := r.queue[0]
	r.mu.Unlock()

	inserted, err := r.store.PutLetterIfAbsent(ctx, item.URL, letter)
	if err != nil {
		return err
	}
	if !inserted {
		zap.L().Info("letter already mapped, keeping stored value",
			zap.String("url", item.URL))
	}
	r.advance(item.URL)
	return nil
}

// Skip drops the active item without recording a letter. The URL may be
// re-enqueued on a later pipeline pass.
func (r *Resolver) Skip(ctx context.Context) error {
	r.mu.Lock()
	if len(r.queue) == 0 {
		r.mu.Unlock()
		return ErrNoActiveItem
	}
	item := r.queue[0]
	r.mu.Unlock()

	zap.L().Info("letter decision skipped", zap.String("url", item.URL))
	r.advance(item.URL)
	return nil
}

// advance pops the decided head and promotes the next item, notifying
// the prompter outside the lock.
func (r *Resolver) advance(url string) {
	r.mu.Lock()
	if len(r.queue) == 0 || r.queue[0].URL != url {
		r.mu.Unlock()
		return
	}
	r.queue = r.queue[1:]
	delete(r.queued, url)

	var present *model.QueueItem
	var drained func()
	if len(r.queue) > 0 {
		item := r.queue[0]
		present = &item
	} else {
		drained = r.onAllResolved
		r.onAllResolved = nil
	}
	r.mu.Unlock()

	if present != nil {
		r.prompter.Present(*present)
		return
	}
	r.prompter.Drained()
	if drained != nil {
		drained()
	}
}

// OnAllResolved registers a one-shot callback fired when the queue
// empties. Registering with an already-empty queue fires immediately.
func (r *Resolver) OnAllResolved(fn func()) {
	r.mu.Lock()
	if len(r.queue) == 0 {
		r.mu.Unlock()
		fn()
		return
	}
	r.onAllResolved = fn
	r.mu.Unlock()
}

// Pending returns a copy of the queue, active item first.
func (r *Resolver) Pending() []model.QueueItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.QueueItem, len(r.queue))
	copy(out, r.queue)
	return out
}

// QueueLen reports how many URLs await a decision.
func (r *Resolver) QueueLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Active returns the item currently awaiting a decision.
func (r *Resolver) Active() (model.QueueItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return model.QueueItem{}, false
	}
	return r.queue[0], true
}
