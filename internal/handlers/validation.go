package handlers

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

// payloadValidator checks request structs and renders failures as English sentences keyed by
// their JSON field names.
type payloadValidator struct {
	validate *validator.Validate
	trans    ut.Translator
}

func newPayloadValidator() *payloadValidator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")
	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		trans = nil
	}
	return &payloadValidator{validate: validate, trans: trans}
}

// Check returns nil when payload is valid, otherwise an error whose message lists every failing
// field in a stable order.
func (v *payloadValidator) Check(payload any) error {
	err := v.validate.Struct(payload)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if v.trans != nil {
			messages = append(messages, fe.Translate(v.trans))
			continue
		}
		messages = append(messages, fe.Field()+" failed "+fe.Tag())
	}
	sort.Strings(messages)
	return errors.New(strings.Join(messages, "; "))
}
