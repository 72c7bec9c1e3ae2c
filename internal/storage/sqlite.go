package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"vigil/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:vigil.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stream_stats (
			id TEXT PRIMARY KEY,
			stream_name TEXT NOT NULL,
			captured_at TEXT NOT NULL,
			person_count INTEGER NOT NULL,
			male_count INTEGER NOT NULL,
			female_count INTEGER NOT NULL,
			age_distribution TEXT,
			emotion_distribution TEXT,
			notes TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stream_stats_name ON stream_stats(stream_name)`,
		`CREATE INDEX IF NOT EXISTS idx_stream_stats_captured ON stream_stats(captured_at)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			stream_name TEXT NOT NULL,
			event_type TEXT NOT NULL,
			confidence REAL NOT NULL,
			message TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_stream ON alerts(stream_name)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveStat(ctx context.Context, stat model.StreamStat) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stream_stats (id, stream_name, captured_at, person_count, male_count, female_count, age_distribution, emotion_distribution, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stat.ID,
		stat.StreamName,
		stat.CapturedAt.UTC(),
		stat.PersonCount,
		stat.MaleCount,
		stat.FemaleCount,
		encodeJSON(stat.AgeDistribution),
		encodeJSON(stat.EmotionDistribution),
		stat.Notes,
	)
	return err
}

func (s *sqliteStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, created_at, stream_name, event_type, confidence, message)
		VALUES (?, ?, ?, ?, ?, ?)`,
		alert.ID,
		alert.Timestamp.UTC(),
		alert.StreamName,
		alert.EventType,
		alert.Confidence,
		alert.Message,
	)
	return err
}
