package validate

import (
	"math"
	"time"

	"enquiry-socket/internal/enquiry/domain"
)

const (
	dateLayout          = "2006-01-02"
	dateTimeLayout      = "2006-01-02T15:04:05"
	dateTimeZonedLayout = "2006-01-02T15:04:05Z07:00"
)

// Accepted datetime inputs without a zone; normalised to dateTimeLayout.
var localDateTimeLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// Accepted datetime inputs with a zone; normalised to dateTimeZonedLayout.
var zonedDateTimeLayouts = []string{
	"2006-01-02T15:04Z07:00",
	time.RFC3339,
	time.RFC3339Nano,
}

func dateRule(domain.FieldDefinition) rule {
	return func(v any) (any, *domain.FieldError) {
		invalid := &domain.FieldError{Msg: "invalid date format", Type: "type_error.date"}
		switch val := v.(type) {
		case string:
			t, err := time.Parse(dateLayout, val)
			if err != nil {
				return nil, invalid
			}
			return t.Format(dateLayout), nil
		case float64:
			t, ok := fromUnix(val)
			if !ok {
				return nil, invalid
			}
			return t.Format(dateLayout), nil
		}
		return nil, invalid
	}
}

func dateTimeRule(domain.FieldDefinition) rule {
	return func(v any) (any, *domain.FieldError) {
		invalid := &domain.FieldError{Msg: "invalid datetime format", Type: "type_error.datetime"}
		switch val := v.(type) {
		case string:
			for _, layout := range localDateTimeLayouts {
				if t, err := time.Parse(layout, val); err == nil {
					return t.Format(dateTimeLayout), nil
				}
			}
			for _, layout := range zonedDateTimeLayouts {
				if t, err := time.Parse(layout, val); err == nil {
					return t.Format(dateTimeZonedLayout), nil
				}
			}
		case float64:
			if t, ok := fromUnix(val); ok {
				return t.Format(dateTimeZonedLayout), nil
			}
		}
		return nil, invalid
	}
}

// fromUnix converts a JSON number of seconds since the epoch to UTC.
func fromUnix(sec float64) (time.Time, bool) {
	if math.IsNaN(sec) || math.IsInf(sec, 0) || math.Abs(sec) > 1e11 {
		return time.Time{}, false
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), true
}
