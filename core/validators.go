package core

import (
	"reflect"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// custom validation tags & texts
	printableTag  = "printable"
	printableText = "control characters are not allowed"

	requiredTag         = "required"
	requiredWithTag     = "required_with"
	requiredWithoutTag  = "required_without"
	requiredText        = "this field is required"
	requiredWithoutText = "{0} is required when {1} is missing"
	emailTag            = "email"
	emailText           = "enter a valid email address"
	urlTag              = "url"
	urlText             = "enter a valid URL"
)

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON (or form) tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	// register custom validators
	_ = validate.RegisterValidation(printableTag, printableValidation)
	RegisterCustomTranslation(validate, translator, printableTag, printableText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, emailTag, emailText, true)
	RegisterCustomTranslation(validate, translator, urlTag, urlText, true)

	_ = validate.RegisterTranslation(
		requiredWithoutTag, translator,
		func(t ut.Translator) error { return t.Add(requiredWithoutTag, requiredWithoutText, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(requiredWithoutTag, fe.Field(), strings.ToLower(fe.Param()))
			return s
		},
	)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Custom Global Validators

// printableValidation rejects strings holding control characters (tabs, newlines, NULs...).
func printableValidation(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
