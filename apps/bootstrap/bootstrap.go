// Package bootstrap holds the setup shared by the API, the admin CLI and the tests.
package bootstrap

import (
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/etda/school/core"
	"github.com/etda/school/core/attendance"
	"github.com/etda/school/core/bimester"
	"github.com/etda/school/core/grade"
	"github.com/etda/school/core/student"
	"github.com/etda/school/core/teacher"
	"github.com/etda/school/core/user"
)

func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// InitValidators registers every custom validator & translation of the app.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	student.InitValidators(validate, translator)
	teacher.InitValidators(validate, translator)
	bimester.InitValidators(validate, translator)
	grade.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)
}

// NewValidator returns a ready to use validator along with its translator.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := NewTranslator()
	InitValidators(validate, translator)
	return validate, translator
}
