// Package store persists the process-wide triage state: the URL→letter
// campaign mapping, the panel directory snapshot, and the code→panel
// audit map.
package store

import (
	"context"
	"time"

	"github.com/inboxops/autotag/internal/model"
)

// Store defines the persistence interface for the triage pipeline.
type Store interface {
	// Letter mappings. PutLetterIfAbsent is the resolver's append-only
	// write path: it reports false without touching the row when the
	// URL is already mapped. SetLetter is the explicit human
	// re-assignment path and overwrites.
	GetLetter(ctx context.Context, url string) (string, bool, error)
	PutLetterIfAbsent(ctx context.Context, url, letter string) (bool, error)
	SetLetter(ctx context.Context, url, letter string) error
	DeleteLetter(ctx context.Context, url string) error
	ListLetters(ctx context.Context) (map[string]string, error)

	// Panel snapshot: the last good registry fetch, so a restart starts
	// from stale-cache behavior instead of an empty directory.
	SavePanelSnapshot(ctx context.Context, panels []model.Panel, refreshedAt time.Time) error
	LoadPanelSnapshot(ctx context.Context) ([]model.Panel, time.Time, error)

	// Audit map code→panel name, display only. First write wins.
	SaveAudit(ctx context.Context, code, panelName string) error
	ListAudit(ctx context.Context) (map[string]string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
