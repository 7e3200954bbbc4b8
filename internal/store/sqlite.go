package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/inboxops/autotag/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS letter_mappings (
	url         TEXT PRIMARY KEY,
	letter      TEXT NOT NULL,
	assigned_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS panel_snapshot (
	id           TEXT PRIMARY KEY,
	panels       TEXT NOT NULL,
	refreshed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_codes (
	code       TEXT PRIMARY KEY,
	panel_name TEXT NOT NULL,
	tagged_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetLetter(ctx context.Context, url string) (string, bool, error) {
	var letter string
	err := s.db.QueryRowContext(ctx,
		`SELECT letter FROM letter_mappings WHERE url = ?`, url,
	).Scan(&letter)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "sqlite: get letter")
	}
	return letter, true, nil
}

func (s *SQLiteStore) PutLetterIfAbsent(ctx context.Context, url, letter string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO letter_mappings (url, letter, assigned_at) VALUES (?, ?, ?)
		 ON CONFLICT(url) DO NOTHING`,
		url, letter, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: put letter")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) SetLetter(ctx context.Context, url, letter string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO letter_mappings (url, letter, assigned_at) VALUES (?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET letter = excluded.letter, assigned_at = excluded.assigned_at`,
		url, letter, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: set letter")
}

func (s *SQLiteStore) DeleteLetter(ctx context.Context, url string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM letter_mappings WHERE url = ?`, url)
	return eris.Wrap(err, "sqlite: delete letter")
}

func (s *SQLiteStore) ListLetters(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT url, letter FROM letter_mappings ORDER BY url`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list letters")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var url, letter string
		if err := rows.Scan(&url, &letter); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan letter")
		}
		out[url] = letter
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list letters iterate")
}

func (s *SQLiteStore) SavePanelSnapshot(ctx context.Context, panels []model.Panel, refreshedAt time.Time) error {
	payload, err := json.Marshal(panels)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal panels")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO panel_snapshot (id, panels, refreshed_at) VALUES ('current', ?, ?)
		 ON CONFLICT(id) DO UPDATE SET panels = excluded.panels, refreshed_at = excluded.refreshed_at`,
		string(payload), refreshedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: save panel snapshot")
}

func (s *SQLiteStore) LoadPanelSnapshot(ctx context.Context) ([]model.Panel, time.Time, error) {
	var payload string
	var refreshedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT panels, refreshed_at FROM panel_snapshot WHERE id = 'current'`,
	).Scan(&payload, &refreshedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, eris.Wrap(err, "sqlite: load panel snapshot")
	}

	var panels []model.Panel
	if err := json.Unmarshal([]byte(payload), &panels); err != nil {
		return nil, time.Time{}, eris.Wrap(err, "sqlite: unmarshal panels")
	}
	return panels, refreshedAt, nil
}

func (s *SQLiteStore) SaveAudit(ctx context.Context, code, panelName string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_codes (code, panel_name, tagged_at) VALUES (?, ?, ?)
		 ON CONFLICT(code) DO NOTHING`,
		code, panelName, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save audit")
}

func (s *SQLiteStore) ListAudit(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code, panel_name FROM audit_codes ORDER BY code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var code, panel string
		if err := rows.Scan(&code, &panel); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit")
		}
		out[code] = panel
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list audit iterate")
}
