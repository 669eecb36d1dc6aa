package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// keyIDLen is the hex length of a stored ingest key fingerprint.
const keyIDLen = 16

// KeyID fingerprints an ingest key so the secret itself never leaves
// the HTTP layer. An empty key stays empty.
func KeyID(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:keyIDLen]
}

// Batch is one accepted ingestion request: the records of a single
// category as sent by an SDK flush.
type Batch struct {
	ID         string            `json:"id"`
	Category   string            `json:"category"`
	KeyID      string            `json:"key_id"`
	ClientIP   string            `json:"client_ip"`
	ReceivedAt time.Time         `json:"received_at"`
	Records    []json.RawMessage `json:"records"`
}

func (b *Batch) EnrichWith(clientIP string, receivedAt time.Time) {
	b.ClientIP = clientIP
	b.ReceivedAt = receivedAt
}
