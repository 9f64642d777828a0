package model

import (
	"encoding/json"
	"time"
)

// AmountRange is a whole-dollar range. Either bound may be unknown; a single
// figure is stored with Min == Max.
type AmountRange struct {
	Min *int64 `json:"min"`
	Max *int64 `json:"max"`
}

// Empty reports whether neither bound is known.
func (r *AmountRange) Empty() bool {
	return r == nil || (r.Min == nil && r.Max == nil)
}

// ExtractedRecord is one marketplace listing recovered from rendered content.
// Every attribute except NaturalKey is nil when the page did not state it.
type ExtractedRecord struct {
	NaturalKey      string       `json:"natural_key" validate:"required,max=200"`
	ListingID       *string      `json:"listing_id,omitempty" validate:"omitempty,max=120"`
	Title           *string      `json:"title,omitempty" validate:"omitempty,max=500"`
	URL             *string      `json:"url,omitempty" validate:"omitempty,url"`
	AskingPrice     *int64       `json:"asking_price,omitempty" validate:"omitempty,gte=0"`
	Revenue         *AmountRange `json:"revenue,omitempty"`
	Profit          *AmountRange `json:"profit,omitempty"`
	Multiple        *float64     `json:"multiple,omitempty" validate:"omitempty,gte=0,lte=1000"`
	Industry        *string      `json:"industry,omitempty" validate:"omitempty,max=200"`
	BusinessModel   *string      `json:"business_model,omitempty" validate:"omitempty,max=200"`
	Location        *string      `json:"location,omitempty" validate:"omitempty,max=200"`
	ListedDate      *time.Time   `json:"listed_date,omitempty"`
	EstablishedYear *int         `json:"established_year,omitempty" validate:"omitempty,gte=1800,lte=2100"`
	Description     *string      `json:"description,omitempty"`

	// Raw is the listing object exactly as the generator returned it.
	Raw json.RawMessage `json:"-" validate:"-"`
}

// StoredListing is the persisted form of an ExtractedRecord.
type StoredListing struct {
	ID          string          `json:"id"`
	Record      ExtractedRecord `json:"record"`
	SourceURL   string          `json:"source_url"`
	FirstSeenAt time.Time       `json:"first_seen_at"`
	LastSeenAt  time.Time       `json:"last_seen_at"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}
