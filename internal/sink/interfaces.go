package sink

import (
	"context"
)

// TrackingSink is the analytics platform: the primary, authoritative sink
// for user-facing event ingestion. SetProfile is an idempotent upsert keyed
// on the identity.
type TrackingSink interface {
	Track(ctx context.Context, event string, properties map[string]interface{}) error
	SetProfile(ctx context.Context, distinctID, ip string, properties map[string]interface{}) error
}

// StreamSink is the append-only message bus. Publish returns the broker's
// message id when it reports one.
type StreamSink interface {
	Publish(ctx context.Context, payload []byte, attributes map[string]string) (string, error)
}

// Row is one warehouse record: the event name, the full enriched record as a
// JSON string, and the dispatch timestamp in RFC3339.
type Row struct {
	Event     string `bson:"event" json:"event"`
	Params    string `bson:"params" json:"params"`
	Timestamp string `bson:"timestamp" json:"timestamp"`
}

type WarehouseSink interface {
	Insert(ctx context.Context, row Row) error
}
