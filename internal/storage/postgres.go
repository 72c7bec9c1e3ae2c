package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"vigil/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/vigil?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stream_stats (
			id UUID PRIMARY KEY,
			stream_name TEXT NOT NULL,
			captured_at TIMESTAMPTZ NOT NULL,
			person_count INTEGER NOT NULL,
			male_count INTEGER NOT NULL,
			female_count INTEGER NOT NULL,
			age_distribution JSONB,
			emotion_distribution JSONB,
			notes TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stream_stats_name ON stream_stats(stream_name)`,
		`CREATE INDEX IF NOT EXISTS idx_stream_stats_captured ON stream_stats(captured_at)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id UUID PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			stream_name TEXT NOT NULL,
			event_type TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
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

func (s *postgresStore) SaveStat(ctx context.Context, stat model.StreamStat) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stream_stats (id, stream_name, captured_at, person_count, male_count, female_count, age_distribution, emotion_distribution, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
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

func (s *postgresStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, created_at, stream_name, event_type, confidence, message)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		alert.ID,
		alert.Timestamp.UTC(),
		alert.StreamName,
		alert.EventType,
		alert.Confidence,
		alert.Message,
	)
	return err
}
