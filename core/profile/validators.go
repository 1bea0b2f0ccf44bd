package profile

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/pesantren/core"
	"github.com/trezcool/pesantren/core/rbac"
)

var (
	roleTagTag  = "roletag"
	roleTagText = "peran tidak dikenal"
)

// InitValidators registers the profile validators on validate.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(roleTagTag, roleTagValidation)
	core.RegisterCustomTranslation(validate, translator, roleTagTag, roleTagText)
}

// roleTagValidation checks that the field is a role of the matrix.
func roleTagValidation(fl validator.FieldLevel) bool {
	_, ok := rbac.Parse(fl.Field().String())
	return ok
}
