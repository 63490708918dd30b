package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/dcict/exam-backend/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// trans translates errors from Gin's binding engine; stdTrans those from Struct.
// Each validator instance needs its own translator because registrations are per pair.
var (
	trans    ut.Translator
	stdTrans ut.Translator

	std     *govalidator.Validate
	stdOnce sync.Once
)

// Setup registers the custom rules and English translations on Gin's binding engine.
// Call once during application startup.
func Setup() {
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		trans = configure(v)
	}
}

// Struct validates v against its `validate` tags. Used outside HTTP binding,
// e.g. for WebSocket payloads and seed files.
func Struct(v any) map[string]string {
	stdOnce.Do(func() {
		std = govalidator.New(govalidator.WithRequiredStructEnabled())
		stdTrans = configure(std)
	})
	if err := std.Struct(v); err != nil {
		return translate(err, stdTrans)
	}
	return nil
}

func configure(v *govalidator.Validate) ut.Translator {
	// Use JSON tag name for field names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("option_letter", func(fl govalidator.FieldLevel) bool {
		return model.Option(fl.Field().String()).Valid()
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	t, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, t)
	_ = v.RegisterTranslation("option_letter", t,
		func(t ut.Translator) error {
			return t.Add("option_letter", "{0} must be one of A, B, C or D", true)
		},
		func(t ut.Translator, fe govalidator.FieldError) string {
			msg, _ := t.T("option_letter", fe.Field())
			return msg
		},
	)
	return t
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name → human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	return translate(err, trans)
}

func translate(err error, t ut.Translator) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			if t != nil {
				fields[fe.Field()] = fe.Translate(t)
			} else {
				fields[fe.Field()] = fe.Error()
			}
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst any) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}
