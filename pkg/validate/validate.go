package validate

import "github.com/go-playground/validator/v10"

// New returns a validator with the custom GPS range checks registered.
// These guard structural sanity of the wire envelope; domain quality rules
// live in internal/quality.
func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("lat", func(fl validator.FieldLevel) bool {
		lat := fl.Field().Float()
		return lat >= -90.0 && lat <= 90.0
	})
	_ = v.RegisterValidation("lng", func(fl validator.FieldLevel) bool {
		lng := fl.Field().Float()
		return lng >= -180.0 && lng <= 180.0
	})
	return v
}
