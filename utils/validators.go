package utils

import (
	"math"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterCustomValidators adds the coordinate rules to v.
func RegisterCustomValidators(v *validator.Validate) {
	v.RegisterValidation("lat", ValidateLatitudeRule)
	v.RegisterValidation("lng", ValidateLongitudeRule)
}

// InitValidator registers the custom rules on gin's binding engine. Safe to
// call more than once.
func InitValidator() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			RegisterCustomValidators(v)
		}
	})
}

func ValidateLatitudeRule(fl validator.FieldLevel) bool {
	return inRange(fl.Field().Float(), 90)
}

func ValidateLongitudeRule(fl validator.FieldLevel) bool {
	return inRange(fl.Field().Float(), 180)
}

func inRange(v, limit float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= -limit && v <= limit
}
