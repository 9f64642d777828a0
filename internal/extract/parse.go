package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-sync/internal/model"
)

// ParseError reports generator output that does not conform to the listing
// schema. It is fatal to the run.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract: %s: %v", e.Reason, e.Err)
	}
	return "extract: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseErr(err error, format string, args ...any) *ParseError {
	return &ParseError{Reason: fmt.Sprintf(format, args...), Err: err}
}

// cleanJSON strips markdown code fences and any prose around the outermost
// JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimPrefix(text, "json")
		text = strings.TrimPrefix(text, "JSON")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

type envelope struct {
	Listings     []json.RawMessage `json:"listings"`
	TotalFound   *int              `json:"total_found"`
	HasMorePages *bool             `json:"has_more_pages"`
}

type rawListing struct {
	ListingID       json.RawMessage `json:"listing_id"`
	Title           *string         `json:"title"`
	URL             *string         `json:"url"`
	AskingPrice     json.RawMessage `json:"asking_price"`
	Revenue         json.RawMessage `json:"revenue"`
	Profit          json.RawMessage `json:"profit"`
	Multiple        json.RawMessage `json:"multiple"`
	Industry        *string         `json:"industry"`
	BusinessModel   *string         `json:"business_model"`
	Location        *string         `json:"location"`
	ListedDate      *string         `json:"listed_date"`
	EstablishedYear json.RawMessage `json:"established_year"`
	Description     *string         `json:"description"`
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return eris.New("trailing data after JSON object")
	}
	return nil
}

// parseEnvelope decodes the generator output, returning the raw listing
// objects for per-record conversion.
func parseEnvelope(text string) (*envelope, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, parseErr(nil, "empty response")
	}
	var env envelope
	if err := decodeStrict([]byte(cleaned), &env); err != nil {
		return nil, parseErr(err, "decode response envelope")
	}
	if env.Listings == nil {
		return nil, parseErr(nil, `response has no "listings" array`)
	}
	if env.HasMorePages == nil {
		return nil, parseErr(nil, `response has no "has_more_pages" flag`)
	}
	if env.TotalFound != nil && *env.TotalFound < 0 {
		return nil, parseErr(nil, "negative total_found %d", *env.TotalFound)
	}
	return &env, nil
}

// toRecord converts one raw listing object. The returned record has no
// natural key yet. Figures given only as a label are dropped and reported in
// notes.
func toRecord(raw json.RawMessage) (rec model.ExtractedRecord, notes []string, err error) {
	var in rawListing
	if err := decodeStrict(raw, &in); err != nil {
		return rec, nil, err
	}

	rec = model.ExtractedRecord{
		Title:         cleanString(in.Title),
		URL:           cleanString(in.URL),
		Industry:      cleanString(in.Industry),
		BusinessModel: cleanString(in.BusinessModel),
		Location:      cleanString(in.Location),
		Description:   cleanString(in.Description),
		Raw:           raw,
	}

	// lenient clears a label-only value and keeps any other error.
	lenient := func(field string, err error) error {
		var ue *UnrecognizedError
		if errors.As(err, &ue) {
			notes = append(notes, fmt.Sprintf("%s %q is not a recognizable %s; set to null", field, ue.Value, ue.Kind))
			return nil
		}
		if err != nil {
			return eris.Wrap(err, field)
		}
		return nil
	}

	if rec.ListingID, err = decodeID(in.ListingID); err != nil {
		return rec, notes, eris.Wrap(err, "listing_id")
	}
	rec.AskingPrice, err = decodeAmount(in.AskingPrice)
	if err = lenient("asking_price", err); err != nil {
		return rec, notes, err
	}
	rec.Revenue, err = decodeRange(in.Revenue)
	if err = lenient("revenue", err); err != nil {
		return rec, notes, err
	}
	rec.Profit, err = decodeRange(in.Profit)
	if err = lenient("profit", err); err != nil {
		return rec, notes, err
	}
	rec.Multiple, err = decodeMultiple(in.Multiple)
	if err = lenient("multiple", err); err != nil {
		return rec, notes, err
	}
	rec.ListedDate, err = decodeDate(in.ListedDate)
	if err = lenient("listed_date", err); err != nil {
		return rec, notes, err
	}
	rec.EstablishedYear, err = decodeYear(in.EstablishedYear)
	if err = lenient("established_year", err); err != nil {
		return rec, notes, err
	}
	return rec, notes, nil
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// absent reports whether a string value is an explicit "not stated" marker.
func absent(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "n/a", "na", "none", "null", "-", "undisclosed", "not disclosed":
		return true
	}
	return false
}

func cleanString(s *string) *string {
	if s == nil || absent(*s) {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func decodeID(raw json.RawMessage) (*string, error) {
	if isNull(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return cleanString(&s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, eris.Errorf("want string or number, got %s", raw)
	}
	id := n.String()
	return &id, nil
}

func decodeAmount(raw json.RawMessage) (*int64, error) {
	if isNull(raw) {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		v, err := fromNumber(f)
		if err != nil {
			return nil, err
		}
		return &v, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, eris.Errorf("want number or string, got %s", raw)
	}
	if absent(s) {
		return nil, nil
	}
	v, err := ParseAmount(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func decodeRange(raw json.RawMessage) (*model.AmountRange, error) {
	if isNull(raw) {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		v, err := fromNumber(f)
		if err != nil {
			return nil, err
		}
		return &model.AmountRange{Min: &v, Max: &v}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if absent(s) {
			return nil, nil
		}
		r, err := ParseAmountRange(s)
		if err != nil {
			return nil, err
		}
		return &r, nil
	}
	var obj struct {
		Min json.RawMessage `json:"min"`
		Max json.RawMessage `json:"max"`
	}
	if err := decodeStrict(raw, &obj); err != nil {
		return nil, eris.Errorf("want number, string or {min,max}, got %s", raw)
	}
	lo, err := decodeAmount(obj.Min)
	if err != nil {
		return nil, wrapBound(err, "min")
	}
	hi, err := decodeAmount(obj.Max)
	if err != nil {
		return nil, wrapBound(err, "max")
	}
	r := model.AmountRange{Min: lo, Max: hi}
	if r.Empty() {
		return nil, nil
	}
	return &r, nil
}

// wrapBound annotates a range bound error, passing label-only values through
// so the caller can drop them.
func wrapBound(err error, bound string) error {
	var ue *UnrecognizedError
	if errors.As(err, &ue) {
		return err
	}
	return eris.Wrap(err, bound)
}

func decodeMultiple(raw json.RawMessage) (*float64, error) {
	if isNull(raw) {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, eris.Errorf("want number, got %s", raw)
	}
	if absent(s) {
		return nil, nil
	}
	v, err := ParseMultiple(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01", "January 2, 2006", "Jan 2, 2006", "01/02/2006"}

func decodeDate(s *string) (*time.Time, error) {
	if s == nil || absent(*s) {
		return nil, nil
	}
	v := strings.TrimSpace(*s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, &UnrecognizedError{Kind: "date", Value: v}
}

func decodeYear(raw json.RawMessage) (*int, error) {
	if isNull(raw) {
		return nil, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, eris.Errorf("want integer, got %s", raw)
	}
	if absent(s) {
		return nil, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil, &UnrecognizedError{Kind: "year", Value: s}
	}
	return &n, nil
}
