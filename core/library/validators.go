package library

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/maktaba/core"
)

var (
	categoryTag  = "category"
	categoryText = "unknown category"
)

// InitValidators registers the library validators & their translations.
// The category tag checks values against the categories currently held by svc.
func InitValidators(validate *validator.Validate, translator ut.Translator, svc *Service) {
	_ = validate.RegisterValidation(categoryTag, func(fl validator.FieldLevel) bool {
		return svc.HasCategory(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, categoryTag, categoryText)
}
