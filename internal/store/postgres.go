package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/inboxops/autotag/internal/db"
	"github.com/inboxops/autotag/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 5
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS letter_mappings (
	url         TEXT PRIMARY KEY,
	letter      TEXT NOT NULL,
	assigned_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS panel_snapshot (
	id           TEXT PRIMARY KEY,
	panels       JSONB NOT NULL,
	refreshed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_codes (
	code       TEXT PRIMARY KEY,
	panel_name TEXT NOT NULL,
	tagged_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetLetter(ctx context.Context, url string) (string, bool, error) {
	var letter string
	err := s.pool.QueryRow(ctx,
		`SELECT letter FROM letter_mappings WHERE url = $1`, url,
	).Scan(&letter)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "postgres: get letter")
	}
	return letter, true, nil
}

func (s *PostgresStore) PutLetterIfAbsent(ctx context.Context, url, letter string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO letter_mappings (url, letter, assigned_at) VALUES ($1, $2, $3)
		 ON CONFLICT (url) DO NOTHING`,
		url, letter, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: put letter")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SetLetter(ctx context.Context, url, letter string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO letter_mappings (url, letter, assigned_at) VALUES ($1, $2, $3)
		 ON CONFLICT (url) DO UPDATE SET letter = EXCLUDED.letter, assigned_at = EXCLUDED.assigned_at`,
		url, letter, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: set letter")
}

func (s *PostgresStore) DeleteLetter(ctx context.Context, url string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM letter_mappings WHERE url = $1`, url)
	return eris.Wrap(err, "postgres: delete letter")
}

func (s *PostgresStore) ListLetters(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT url, letter FROM letter_mappings ORDER BY url`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list letters")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var url, letter string
		if err := rows.Scan(&url, &letter); err != nil {
			return nil, eris.Wrap(err, "postgres: scan letter")
		}
		out[url] = letter
	}
	return out, eris.Wrap(rows.Err(), "postgres: list letters iterate")
}

func (s *PostgresStore) SavePanelSnapshot(ctx context.Context, panels []model.Panel, refreshedAt time.Time) error {
	payload, err := json.Marshal(panels)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal panels")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO panel_snapshot (id, panels, refreshed_at) VALUES ('current', $1, $2)
		 ON CONFLICT (id) DO UPDATE SET panels = EXCLUDED.panels, refreshed_at = EXCLUDED.refreshed_at`,
		payload, refreshedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: save panel snapshot")
}

func (s *PostgresStore) LoadPanelSnapshot(ctx context.Context) ([]model.Panel, time.Time, error) {
	var payload []byte
	var refreshedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT panels, refreshed_at FROM panel_snapshot WHERE id = 'current'`,
	).Scan(&payload, &refreshedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, eris.Wrap(err, "postgres: load panel snapshot")
	}

	var panels []model.Panel
	if err := json.Unmarshal(payload, &panels); err != nil {
		return nil, time.Time{}, eris.Wrap(err, "postgres: unmarshal panels")
	}
	return panels, refreshedAt, nil
}

func (s *PostgresStore) SaveAudit(ctx context.Context, code, panelName string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_codes (code, panel_name, tagged_at) VALUES ($1, $2, $3)
		 ON CONFLICT (code) DO NOTHING`,
		code, panelName, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save audit")
}

func (s *PostgresStore) ListAudit(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT code, panel_name FROM audit_codes ORDER BY code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var code, panel string
		if err := rows.Scan(&code, &panel); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit")
		}
		out[code] = panel
	}
	return out, eris.Wrap(rows.Err(), "postgres: list audit iterate")
}
