package store

import (
	"context"
	"errors"
)

// Well-known record types.
const (
	TypeOrder        = "orders"
	TypeWebhookEvent = "webhook_events"
)

var (
	// ErrNotFound is returned when no record matches the given type and id.
	ErrNotFound = errors.New("record not found")
)

// Document is any record with a logical identifier. The identifier is
// embedded in the record itself; the store keys records by (type, id).
type Document interface {
	ContentID() string
}

// Filter selects records by top-level JSON field equality.
type Filter struct {
	Equals map[string]string
}

// ContentStore is a generic structured store for JSON documents.
// Implementations must be safe for concurrent use.
type ContentStore interface {
	// Upsert inserts or replaces the record identified by (typ, doc.ContentID()).
	Upsert(ctx context.Context, typ string, doc Document) error

	// Get decodes the record identified by (typ, id) into out.
	// Returns ErrNotFound when absent.
	Get(ctx context.Context, typ, id string, out any) error

	// Query decodes all records of typ matching filter into out,
	// which must be a pointer to a slice.
	Query(ctx context.Context, typ string, filter Filter, out any) error

	// Delete removes the record identified by (typ, id). Deleting an
	// absent record is not an error.
	Delete(ctx context.Context, typ, id string) error
}
