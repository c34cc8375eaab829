package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/umadex/umadex-backend/internal/schedule"
)

// trans is the singleton English translator for validation errors.
var trans ut.Translator

// Setup registers the validator with English translations on Gin's binding engine.
// Call once during application startup.
func Setup() {
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		// Use JSON tag name for field names in error messages.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		// Register English translations.
		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		trans, _ = uni.GetTranslator("en")
		en_translations.RegisterDefaultTranslations(v, trans)

		registerScheduleTags(v)
	}
}

// registerScheduleTags adds "hhmm" (24-hour HH:MM) and "weekday" (day
// name or three-letter abbreviation) for schedule window payloads.
func registerScheduleTags(v *govalidator.Validate) {
	custom := []struct {
		tag     string
		message string
		fn      func(string) error
	}{
		{"hhmm", "{0} must be a time in HH:MM format", checkClock},
		{"weekday", "{0} must be a day of the week", checkWeekday},
	}
	for _, cv := range custom {
		fn := cv.fn
		_ = v.RegisterValidation(cv.tag, func(fl govalidator.FieldLevel) bool {
			return fn(fl.Field().String()) == nil
		})
		message := cv.message
		_ = v.RegisterTranslation(cv.tag, trans,
			func(ut ut.Translator) error { return ut.Add(cv.tag, message, true) },
			func(ut ut.Translator, fe govalidator.FieldError) string {
				msg, _ := ut.T(fe.Tag(), fe.Field())
				return msg
			})
	}
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name to human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(trans)
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}

func checkClock(s string) error {
	_, err := schedule.ParseClock(s)
	return err
}

func checkWeekday(s string) error {
	_, err := schedule.ParseWeekday(s)
	return err
}
