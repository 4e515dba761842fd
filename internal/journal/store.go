package journal

import "context"

// Store persists the full dream collection as one re-derivable snapshot.
//
// Load fails open: missing or unparseable stored data yields an empty
// collection and a nil error, never a parse failure. Save overwrites the
// whole slot; there are no partial writes.
type Store interface {
	Load(ctx context.Context) ([]DreamRecord, error)
	Save(ctx context.Context, records []DreamRecord) error
}
