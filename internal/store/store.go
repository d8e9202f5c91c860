// Package store keeps a local SQLite history of parsed matches.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/ZehenForever/psreplay-stats/internal/model"
)

var ErrNotFound = errors.New("match not found")

const schema = `
CREATE TABLE IF NOT EXISTS matches (
	id          TEXT PRIMARY KEY,
	replay_id   TEXT NOT NULL UNIQUE,
	source      TEXT NOT NULL DEFAULT '',
	format      TEXT NOT NULL DEFAULT '',
	winner      TEXT NOT NULL DEFAULT '',
	p1_name     TEXT NOT NULL DEFAULT '',
	p2_name     TEXT NOT NULL DEFAULT '',
	kills       INTEGER NOT NULL DEFAULT 0,
	result_json BLOB NOT NULL,
	saved_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_matches_saved_at ON matches (saved_at DESC);
`

// Record is one stored match. Result is nil in listings.
type Record struct {
	ID       string             `json:"id"`
	ReplayID string             `json:"replayId"`
	Source   string             `json:"source"`
	Format   string             `json:"format"`
	Winner   string             `json:"winner"`
	P1       string             `json:"p1"`
	P2       string             `json:"p2"`
	Kills    int                `json:"kills"`
	SavedAt  time.Time          `json:"savedAt"`
	Result   *model.MatchResult `json:"result,omitempty"`
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite db")
	}
	// one writer; sqlite serialises anyway
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping sqlite db")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "init schema")
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveMatch upserts res under replayID. Re-saving a replay keeps its ID and
// replaces the stored result.
func (s *Store) SaveMatch(ctx context.Context, replayID, source string, res *model.MatchResult) (Record, error) {
	if s == nil || s.db == nil {
		return Record{}, errors.New("storage is not configured")
	}
	replayID = strings.TrimSpace(replayID)
	if replayID == "" {
		return Record{}, errors.New("replay id is required")
	}
	if res == nil {
		return Record{}, errors.New("match result is required")
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return Record{}, errors.Wrap(err, "encode match result")
	}

	rec := Record{
		ID:       uuid.NewString(),
		ReplayID: replayID,
		Source:   source,
		Format:   res.Format,
		Winner:   res.Winner,
		P1:       res.PlayerName(model.SideP1),
		P2:       res.PlayerName(model.SideP2),
		Kills:    len(res.KillLog),
		SavedAt:  s.now().UTC().Truncate(time.Millisecond),
		Result:   res.Clone(),
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO matches (id, replay_id, source, format, winner, p1_name, p2_name, kills, result_json, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(replay_id) DO UPDATE SET
		    source = excluded.source,
		    format = excluded.format,
		    winner = excluded.winner,
		    p1_name = excluded.p1_name,
		    p2_name = excluded.p2_name,
		    kills = excluded.kills,
		    result_json = excluded.result_json,
		    saved_at = excluded.saved_at
		 RETURNING id`,
		rec.ID, rec.ReplayID, rec.Source, rec.Format, rec.Winner, rec.P1, rec.P2, rec.Kills, payload, rec.SavedAt.UnixMilli(),
	)
	if err := row.Scan(&rec.ID); err != nil {
		return Record{}, errors.Wrap(err, "save match")
	}
	return rec, nil
}

// GetMatch looks a match up by replay ID or by stored ID.
func (s *Store) GetMatch(ctx context.Context, key string) (Record, error) {
	if s == nil || s.db == nil {
		return Record{}, errors.New("storage is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return Record{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, replay_id, source, format, winner, p1_name, p2_name, kills, saved_at, result_json
		 FROM matches
		 WHERE replay_id = ? OR id = ?
		 LIMIT 1`,
		key, key,
	)

	var rec Record
	var savedAt int64
	var payload []byte
	if err := row.Scan(&rec.ID, &rec.ReplayID, &rec.Source, &rec.Format, &rec.Winner, &rec.P1, &rec.P2, &rec.Kills, &savedAt, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, errors.Wrapf(ErrNotFound, "%q", key)
		}
		return Record{}, errors.Wrap(err, "get match")
	}
	rec.SavedAt = time.UnixMilli(savedAt).UTC()

	res := model.NewMatchResult()
	if err := json.Unmarshal(payload, res); err != nil {
		return Record{}, errors.Wrapf(err, "decode stored match %s", rec.ReplayID)
	}
	rec.Result = res
	return rec, nil
}

// ListMatches returns the most recently saved matches first, without their
// full results. limit <= 0 means no limit.
func (s *Store) ListMatches(ctx context.Context, limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage is not configured")
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, replay_id, source, format, winner, p1_name, p2_name, kills, saved_at
		 FROM matches
		 ORDER BY saved_at DESC, replay_id
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list matches")
	}
	defer func() {
		_ = rows.Close()
	}()

	out := make([]Record, 0)
	for rows.Next() {
		var rec Record
		var savedAt int64
		if err := rows.Scan(&rec.ID, &rec.ReplayID, &rec.Source, &rec.Format, &rec.Winner, &rec.P1, &rec.P2, &rec.Kills, &savedAt); err != nil {
			return nil, errors.Wrap(err, "scan match")
		}
		rec.SavedAt = time.UnixMilli(savedAt).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate matches")
	}
	return out, nil
}

func (s *Store) DeleteMatch(ctx context.Context, replayID string) error {
	if s == nil || s.db == nil {
		return errors.New("storage is not configured")
	}
	r, err := s.db.ExecContext(ctx, `DELETE FROM matches WHERE replay_id = ?`, strings.TrimSpace(replayID))
	if err != nil {
		return errors.Wrap(err, "delete match")
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "%q", replayID)
	}
	return nil
}
