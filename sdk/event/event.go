// Package event holds the records the SDK ships to the ingestion API.
//
// Every record is a plain value built through a validating constructor.
// Optional fields left unset are omitted from the JSON form entirely,
// never emitted as null.
package event

import (
	"errors"
	"fmt"
)

var ErrMissingField = errors.New("missing required field")

// Kind is one of the five ingestion categories.
type Kind int

const (
	KindLog Kind = iota
	KindError
	KindScreen
	KindTrace
	KindMetric
)

// Kinds lists every category in flush order.
var Kinds = []Kind{KindLog, KindError, KindScreen, KindTrace, KindMetric}

func (k Kind) String() string {
	switch k {
	case KindLog:
		return "logs"
	case KindError:
		return "errors"
	case KindScreen:
		return "screens"
	case KindTrace:
		return "traces"
	case KindMetric:
		return "metrics"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// BodyKey is the JSON key wrapping the records of this kind in a batch body.
func (k Kind) BodyKey() string {
	return k.String()
}

// Path is the ingestion endpoint path for this kind.
func (k Kind) Path() string {
	switch k {
	case KindLog:
		return "/api/ingest/app-logs"
	case KindError:
		return "/api/ingest/app-errors"
	case KindScreen:
		return "/api/ingest/app-screens"
	case KindTrace:
		return "/api/ingest/app-traces"
	case KindMetric:
		return "/api/ingest/app-metrics"
	default:
		return ""
	}
}

// KindFromPath maps an ingestion path back to its kind.
func KindFromPath(path string) (Kind, bool) {
	for _, k := range Kinds {
		if k.Path() == path {
			return k, true
		}
	}
	return 0, false
}

func missing(record, field string) error {
	return fmt.Errorf("%s: %s: %w", record, field, ErrMissingField)
}

func copyMap(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
