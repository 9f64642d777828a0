// Package store persists extracted listings and run results, and reconciles
// freshly extracted records against what is already stored.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-sync/internal/model"
)

// ListFilter specifies criteria for listing stored listings.
type ListFilter struct {
	SourceURL string `json:"source_url,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// ListingStore persists listings under a unique natural key.
type ListingStore interface {
	// FindListing returns nil, nil when no listing carries the key.
	FindListing(ctx context.Context, naturalKey string) (*model.StoredListing, error)
	// InsertListing writes l unless its natural key is already taken, in
	// which case it reports false with a nil error.
	InsertListing(ctx context.Context, l *model.StoredListing) (bool, error)
	// UpdateListing replaces every stored attribute of the listing with l.ID
	// and refreshes its last-seen timestamp. FirstSeenAt is left untouched.
	UpdateListing(ctx context.Context, l *model.StoredListing) error
	ListListings(ctx context.Context, filter ListFilter) ([]model.StoredListing, error)
	CountListings(ctx context.Context) (int, error)
}

// RunStore keeps the terminal result of each pipeline run.
type RunStore interface {
	SaveRun(ctx context.Context, result *model.PipelineResult) error
	GetRun(ctx context.Context, runID string) (*model.PipelineResult, error)
}

// Store is the full persistence interface used by the CLI and API.
type Store interface {
	ListingStore
	RunStore

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const (
	defaultListLimit = 100
	listingsTable    = "listings"
)

var (
	insertColumns = []string{
		"id", "natural_key", "listing_id", "title", "asking_price", "location",
		"source_url", "record", "raw", "first_seen_at", "last_seen_at",
	}
	updateColumns = []string{
		"listing_id", "title", "asking_price", "location",
		"source_url", "record", "raw", "last_seen_at",
	}
)

const selectListing = `SELECT id, record, raw, source_url, first_seen_at, last_seen_at FROM listings`

func insertArgs(l *model.StoredListing) ([]any, error) {
	rec, err := json.Marshal(l.Record)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal listing %s", l.Record.NaturalKey)
	}
	return []any{
		l.ID, l.Record.NaturalKey, l.Record.ListingID, l.Record.Title, l.Record.AskingPrice, l.Record.Location,
		l.SourceURL, string(rec), rawText(l.Raw), l.FirstSeenAt.UTC(), l.LastSeenAt.UTC(),
	}, nil
}

// updateArgs binds updateColumns followed by the row ID.
func updateArgs(l *model.StoredListing) ([]any, error) {
	rec, err := json.Marshal(l.Record)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal listing %s", l.Record.NaturalKey)
	}
	return []any{
		l.Record.ListingID, l.Record.Title, l.Record.AskingPrice, l.Record.Location,
		l.SourceURL, string(rec), rawText(l.Raw), l.LastSeenAt.UTC(), l.ID,
	}, nil
}

func rawText(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}

func decodeListing(id string, record, raw []byte, sourceURL string, firstSeen, lastSeen time.Time) (*model.StoredListing, error) {
	l := &model.StoredListing{
		ID:          id,
		SourceURL:   sourceURL,
		FirstSeenAt: firstSeen,
		LastSeenAt:  lastSeen,
	}
	if err := json.Unmarshal(record, &l.Record); err != nil {
		return nil, eris.Wrapf(err, "store: unmarshal listing %s", id)
	}
	if len(raw) > 0 {
		l.Raw = json.RawMessage(raw)
		l.Record.Raw = l.Raw
	}
	return l, nil
}

func listLimit(filter ListFilter) int {
	if filter.Limit <= 0 {
		return defaultListLimit
	}
	return filter.Limit
}
