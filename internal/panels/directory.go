// Package panels resolves the raw panel names shown in the inbox UI to
// panel ids, backed by the remote registry with a TTL cache and static
// fallback data.
package panels

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inboxops/autotag/internal/model"
)

// minPartialAlias is the shortest alias considered for substring
// matching. Shorter aliases only match exactly, so e.g. a panel named
// "Escaloneta" can never resolve through a three-letter alias.
const minPartialAlias = 4

// Fetcher retrieves the current panel directory from its upstream.
type Fetcher interface {
	Panels(ctx context.Context) ([]model.Panel, error)
}

// SnapshotStore persists the last good fetch across restarts.
type SnapshotStore interface {
	SavePanelSnapshot(ctx context.Context, panels []model.Panel, refreshedAt time.Time) error
	LoadPanelSnapshot(ctx context.Context) ([]model.Panel, time.Time, error)
}

// Directory caches the panel list and resolves raw UI names to panels.
type Directory struct {
	fetcher  Fetcher
	ttl      time.Duration
	now      func() time.Time
	snapshot SnapshotStore
	static   []model.Panel

	mu        sync.Mutex
	cached    []model.Panel
	fetchedAt time.Time
}

// Option configures a Directory.
type Option func(*Directory)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) { d.now = now }
}

// WithSnapshotStore makes the directory persist each successful fetch
// and seed its cache from the stored snapshot on first use.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(d *Directory) { d.snapshot = s }
}

// WithStaticPanels overrides the built-in fallback table.
func WithStaticPanels(panels []model.Panel) Option {
	return func(d *Directory) { d.static = panels }
}

// NewDirectory creates a Directory refreshing from fetcher at most once
// per ttl.
func NewDirectory(fetcher Fetcher, ttl time.Duration, opts ...Option) *Directory {
	d := &Directory{
		fetcher: fetcher,
		ttl:     ttl,
		now:     time.Now,
		static:  DefaultPanels,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Resolve maps a raw panel name from the UI to a panel id. It refreshes
// the cached directory when stale; if the refresh fails the previous
// cache keeps serving, and the static table answers names the remote
// set does not know.
func (d *Directory) Resolve(ctx context.Context, rawName string) (model.Resolution, bool) {
	panels := d.currentPanels(ctx)

	name := normalizeName(rawName)
	if name == "" {
		return model.Resolution{}, false
	}
	if res, ok := match(panels, name); ok {
		return res, true
	}
	return match(d.static, name)
}

// Panels returns the directory currently in effect, refreshing first if
// the cache is stale.
func (d *Directory) Panels(ctx context.Context) []model.Panel {
	return d.currentPanels(ctx)
}

func (d *Directory) currentPanels(ctx context.Context) []model.Panel {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if d.cached == nil && d.snapshot != nil {
		if panels, at, err := d.snapshot.LoadPanelSnapshot(ctx); err != nil {
			zap.L().Warn("panel snapshot load failed", zap.Error(err))
		} else if len(panels) > 0 {
			d.cached = panels
			d.fetchedAt = at
		}
	}
	if d.cached != nil && now.Sub(d.fetchedAt) < d.ttl {
		return d.cached
	}

	panels, err := d.fetcher.Panels(ctx)
	if err != nil {
		zap.L().Warn("panel directory refresh failed",
			zap.Error(err),
			zap.Bool("stale_cache", d.cached != nil))
		if d.cached != nil {
			// Keep serving the stale copy; retry on the next call.
			d.fetchedAt = now
			return d.cached
		}
		return d.static
	}

	d.cached = panels
	d.fetchedAt = now
	if d.snapshot != nil {
		if err := d.snapshot.SavePanelSnapshot(ctx, panels, now); err != nil {
			zap.L().Warn("panel snapshot save failed", zap.Error(err))
		}
	}
	return d.cached
}

var panelPrefixes = []string{"panel ", "panel:"}

// normalizeName lowercases the raw UI name and strips the "Panel "
// display prefix the inbox prepends.
func normalizeName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	for _, p := range panelPrefixes {
		if strings.HasPrefix(name, p) {
			name = strings.TrimSpace(strings.TrimPrefix(name, p))
			break
		}
	}
	return name
}

// match tries an exact alias match first, then a substring pass where
// the raw name must contain a sufficiently long alias.
func match(panels []model.Panel, name string) (model.Resolution, bool) {
	for _, p := range panels {
		for _, alias := range p.Names {
			if strings.EqualFold(alias, name) {
				return model.Resolution{ID: p.ID, Name: alias}, true
			}
		}
	}
	for _, p := range panels {
		for _, alias := range p.Names {
			if len(alias) >= minPartialAlias && strings.Contains(name, strings.ToLower(alias)) {
				return model.Resolution{ID: p.ID, Name: alias}, true
			}
		}
	}
	return model.Resolution{}, false
}
