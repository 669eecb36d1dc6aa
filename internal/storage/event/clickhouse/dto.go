package clickhouse

import (
	"encoding/json"
	"net"
	"time"

	"github.com/leshachaplin/appsight/internal/domain"
)

type record struct {
	ReceivedAt time.Time `ch:"received_at"`
	RecordTime time.Time `ch:"record_time"`
	BatchID    string    `ch:"batch_id"`
	Category   string    `ch:"category"`
	KeyID      string    `ch:"key_id"`
	IP         net.IP    `ch:"ip"`
	Name       string    `ch:"name"`
	Payload    string    `ch:"payload"`
}

// header pulls the fields shared by the record kinds that are worth a
// column; the full record stays in payload.
type header struct {
	Timestamp  time.Time `json:"timestamp"`
	StartTime  time.Time `json:"startTime"`
	Message    string    `json:"message"`
	ScreenName string    `json:"screenName"`
	Name       string    `json:"name"`
	MetricName string    `json:"metricName"`
}

func (h header) name() string {
	for _, n := range []string{h.MetricName, h.ScreenName, h.Name, h.Message} {
		if n != "" {
			return n
		}
	}
	return ""
}

func (h header) time(fallback time.Time) time.Time {
	switch {
	case !h.Timestamp.IsZero():
		return h.Timestamp
	case !h.StartTime.IsZero():
		return h.StartTime
	default:
		return fallback
	}
}

func recordsFromBatch(batch domain.Batch) []record {
	ip := net.ParseIP(batch.ClientIP).To4()
	if ip == nil {
		ip = net.IPv4zero
	}

	records := make([]record, len(batch.Records))
	for i, raw := range batch.Records {
		var h header
		_ = json.Unmarshal(raw, &h)

		records[i] = record{
			ReceivedAt: batch.ReceivedAt,
			RecordTime: h.time(batch.ReceivedAt),
			BatchID:    batch.ID,
			Category:   batch.Category,
			KeyID:      batch.KeyID,
			IP:         ip,
			Name:       h.name(),
			Payload:    string(raw),
		}
	}
	return records
}
