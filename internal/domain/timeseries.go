package domain

import "encoding/json"

// TimeSeriesOrder is the ordering of a time-series range query.
type TimeSeriesOrder string

const (
	OrderAscending  TimeSeriesOrder = "ASC"
	OrderDescending TimeSeriesOrder = "DESC"
)

// TimeSeriesRecord is one append-only side-record attached to an entity by
// extension key. Timestamps are epoch milliseconds; records are never
// updated in place.
type TimeSeriesRecord struct {
	EntityFQN string          `json:"entityFullyQualifiedName"`
	Extension string          `json:"extension"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}
