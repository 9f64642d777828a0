package extract

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-sync/internal/model"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func recordValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// validateRecord checks struct tags plus the range bounds the tags cannot
// express.
func validateRecord(rec *model.ExtractedRecord) error {
	if err := recordValidator().Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" ("+fe.Tag()+")")
			}
			return eris.Errorf("invalid fields: %s", strings.Join(fields, ", "))
		}
		return eris.Wrap(err, "validate record")
	}
	for name, r := range map[string]*model.AmountRange{"Revenue": rec.Revenue, "Profit": rec.Profit} {
		if r.Empty() {
			continue
		}
		if (r.Min != nil && *r.Min < 0) || (r.Max != nil && *r.Max < 0) {
			return eris.Errorf("invalid fields: %s (negative)", name)
		}
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return eris.Errorf("invalid fields: %s (min > max)", name)
		}
	}
	return nil
}
