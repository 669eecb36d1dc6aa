package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog"
)

const defaultMaxOpenConns = 5

type Clickhouse struct {
	conn          driver.Conn
	retentionDays int
}

func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Clickhouse, error) {
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = defaultMaxOpenConns
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.DB,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Debugf: func(format string, v ...any) {
			logger.Debug().Msgf(format, v...)
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:     time.Second * 30,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: time.Duration(10) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err = conn.Ping(ctx); err != nil {
		var exception *clickhouse.Exception
		if errors.As(err, &exception) {
			logger.Error().Int32("code", exception.Code).Str("stack", exception.StackTrace).Msg(exception.Message)
		}
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &Clickhouse{
		conn:          conn,
		retentionDays: cfg.RetentionDays,
	}, nil
}

func (c *Clickhouse) Close() error {
	return c.conn.Close()
}

// Migrate creates telemetry_records if missing. One row per SDK record;
// the original JSON is kept in payload.
func (c *Clickhouse) Migrate(ctx context.Context) error {
	return c.conn.Exec(ctx, createTableQuery(c.retentionDays))
}

func createTableQuery(retentionDays int) string {
	q := `CREATE TABLE IF NOT EXISTS telemetry_records
		(
    		received_at DATETIME64(3),
    		record_time DATETIME64(3),
    		batch_id    String,
    		category    LowCardinality(String),
    		key_id      String,
    		ip          IPv4,
    		name        String,
    		payload     String
		) Engine = MergeTree
		PARTITION BY toYYYYMM(received_at)
		ORDER BY (category, received_at)`
	if retentionDays > 0 {
		q += fmt.Sprintf("\n\t\tTTL toDateTime(received_at) + INTERVAL %d DAY", retentionDays)
	}
	return q
}
