package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"vigil/internal/model"
)

// clickhouseStore appends stat and alert records to ClickHouse, suited to
// long-retention analytics over many streams.
type clickhouseStore struct {
	conn driver.Conn
}

func NewClickHouse(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "localhost:9000/vigil"
	}
	addr, database := splitClickHouseDSN(dsn)
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	return &clickhouseStore{conn: conn}, nil
}

func splitClickHouseDSN(dsn string) (addr, database string) {
	addr, database = dsn, "default"
	if idx := strings.LastIndex(dsn, "/"); idx > 0 {
		addr, database = dsn[:idx], dsn[idx+1:]
	}
	return addr, database
}

func (s *clickhouseStore) Init(ctx context.Context) error {
	if err := s.conn.Ping(ctx); err != nil {
		return fmt.Errorf("ping clickhouse: %w", err)
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stream_stats (
			id UUID,
			stream_name String,
			captured_at DateTime64(3, 'UTC'),
			person_count UInt32,
			male_count UInt32,
			female_count UInt32,
			age_distribution String,
			emotion_distribution String,
			notes String
		) ENGINE = MergeTree()
		ORDER BY (stream_name, captured_at)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id UUID,
			created_at DateTime64(3, 'UTC'),
			stream_name String,
			event_type String,
			confidence Float64,
			message String
		) ENGINE = MergeTree()
		ORDER BY (stream_name, created_at)`,
	}
	for _, stmt := range stmts {
		if err := s.conn.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *clickhouseStore) SaveStat(ctx context.Context, stat model.StreamStat) error {
	return s.conn.Exec(ctx,
		`INSERT INTO stream_stats (id, stream_name, captured_at, person_count, male_count, female_count, age_distribution, emotion_distribution, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stat.ID,
		stat.StreamName,
		stat.CapturedAt.UTC(),
		uint32(stat.PersonCount),
		uint32(stat.MaleCount),
		uint32(stat.FemaleCount),
		encodeJSON(stat.AgeDistribution),
		encodeJSON(stat.EmotionDistribution),
		stat.Notes,
	)
}

func (s *clickhouseStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	return s.conn.Exec(ctx,
		`INSERT INTO alerts (id, created_at, stream_name, event_type, confidence, message)
		VALUES (?, ?, ?, ?, ?, ?)`,
		alert.ID,
		alert.Timestamp.UTC(),
		alert.StreamName,
		alert.EventType,
		alert.Confidence,
		alert.Message,
	)
}

func (s *clickhouseStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
