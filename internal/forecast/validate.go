package forecast

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/weatherclock/internal/domain"
)

// Physical plausibility bounds. Temperatures outside the recorded extremes
// on Earth, or humidity outside its percentage range, reject the payload.
const (
	minTemperature = -90.0
	maxTemperature = 60.0
	minHumidity    = 0.0
	maxHumidity    = 100.0
)

// Validator checks forecast payloads for structural completeness and
// physical plausibility. Fails closed: any missing field or out-of-range
// value rejects the whole payload, never a partial acceptance. Pure and
// synchronous.
type Validator struct {
	v *validator.Validate
}

// NewValidator builds a validator whose failure reasons name wire fields
// (json tag names) rather than Go struct fields.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Validate returns nil for an acceptable payload or a ValidationError whose
// reason names the first offending field.
func (vd *Validator) Validate(p *domain.ForecastPayload) error {
	if p == nil {
		return &domain.ValidationError{Reason: "payload missing"}
	}

	if err := vd.v.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &domain.ValidationError{Reason: fieldReason(verrs[0])}
		}
		return &domain.ValidationError{Reason: err.Error()}
	}

	if t := *p.Current.Temperature; t < minTemperature || t > maxTemperature {
		return &domain.ValidationError{
			Reason: fmt.Sprintf("current.temperature_2m %.1f out of range [%.0f, %.0f]", t, minTemperature, maxTemperature),
		}
	}
	if t := p.Hourly.Temperature[0]; t < minTemperature || t > maxTemperature {
		return &domain.ValidationError{
			Reason: fmt.Sprintf("hourly.temperature_2m %.1f out of range [%.0f, %.0f]", t, minTemperature, maxTemperature),
		}
	}
	if h := p.Hourly.RelativeHumidity[0]; h < minHumidity || h > maxHumidity {
		return &domain.ValidationError{
			Reason: fmt.Sprintf("hourly.relative_humidity_2m %.1f out of range [%.0f, %.0f]", h, minHumidity, maxHumidity),
		}
	}

	return nil
}

// fieldReason renders one tag violation as "block.field missing|empty".
// The namespace is json-tag based, e.g. "ForecastPayload.hourly.temperature_2m".
func fieldReason(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return ns + " missing"
	case "min":
		return ns + " empty"
	default:
		return ns + " invalid"
	}
}
