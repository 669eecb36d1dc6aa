package clickhouse

import (
	"context"
	"fmt"

	"github.com/leshachaplin/appsight/internal/domain"
)

func (c *Clickhouse) StoreBatch(ctx context.Context, batch domain.Batch) error {
	records := recordsFromBatch(batch)
	if len(records) == 0 {
		return nil
	}

	b, err := c.conn.PrepareBatch(ctx, `INSERT INTO telemetry_records`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for i := 0; i < len(records); i++ {
		if errAppend := b.AppendStruct(&records[i]); errAppend != nil {
			return fmt.Errorf("append record %d: %w", i, errAppend)
		}
	}
	return b.Send()
}
