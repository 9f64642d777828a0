package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-sync/internal/model"
)

// Reconciler upserts extracted records by natural key. Each record is
// independent: a failure is reported in its outcome and the batch continues.
type Reconciler struct {
	store ListingStore
	now   func() time.Time
	newID func() string
}

// NewReconciler creates a Reconciler writing to s.
func NewReconciler(s ListingStore) *Reconciler {
	return &Reconciler{
		store: s,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// UpsertAll reconciles records found at sourceURL. It returns one outcome per
// record in input order and the aggregate counts. Running it twice with the
// same records inserts nothing the second time.
func (r *Reconciler) UpsertAll(ctx context.Context, sourceURL string, records []model.ExtractedRecord, events *model.EventLog) ([]model.ReconciliationOutcome, model.ReconcileSummary) {
	outcomes := make([]model.ReconciliationOutcome, 0, len(records))
	var summary model.ReconcileSummary

	for i, rec := range records {
		out := r.upsert(ctx, sourceURL, rec)
		if out.Outcome == model.OutcomeFailed {
			zap.L().Warn("store: reconcile record failed",
				zap.String("natural_key", out.NaturalKey),
				zap.String("error", out.Error),
			)
		}
		outcomes = append(outcomes, out)
		summary.Add(out.Outcome)
		events.Emit(model.StageReconcile, i+1, len(records), rec.NaturalKey)
	}

	zap.L().Info("store: reconciled listings",
		zap.String("source_url", sourceURL),
		zap.Int("inserted", summary.Inserted),
		zap.Int("updated", summary.Updated),
		zap.Int("failed", summary.Failed),
	)
	return outcomes, summary
}

func (r *Reconciler) upsert(ctx context.Context, sourceURL string, rec model.ExtractedRecord) model.ReconciliationOutcome {
	out := model.ReconciliationOutcome{NaturalKey: rec.NaturalKey}
	fail := func(err error) model.ReconciliationOutcome {
		out.Outcome = model.OutcomeFailed
		out.Error = err.Error()
		return out
	}

	if rec.NaturalKey == "" {
		return fail(eris.New("store: record has no natural key"))
	}
	if err := ctx.Err(); err != nil {
		return fail(eris.Wrap(err, "store: reconcile"))
	}

	now := r.now().UTC()
	row := &model.StoredListing{
		Record:      rec,
		SourceURL:   sourceURL,
		FirstSeenAt: now,
		LastSeenAt:  now,
		Raw:         rec.Raw,
	}

	existing, err := r.store.FindListing(ctx, rec.NaturalKey)
	if err != nil {
		return fail(err)
	}

	if existing == nil {
		row.ID = r.newID()
		inserted, err := r.store.InsertListing(ctx, row)
		if err != nil {
			return fail(err)
		}
		if inserted {
			out.Outcome = model.OutcomeInserted
			out.StoredID = row.ID
			return out
		}

		// Another writer took the key between lookup and insert.
		existing, err = r.store.FindListing(ctx, rec.NaturalKey)
		if err != nil {
			return fail(err)
		}
		if existing == nil {
			return fail(eris.Errorf("store: listing %s conflicted but cannot be found", rec.NaturalKey))
		}
	}

	row.ID = existing.ID
	row.FirstSeenAt = existing.FirstSeenAt
	if err := r.store.UpdateListing(ctx, row); err != nil {
		return fail(err)
	}
	out.Outcome = model.OutcomeUpdated
	out.StoredID = row.ID
	return out
}
