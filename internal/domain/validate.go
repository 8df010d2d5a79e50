package domain

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a closed record (ChatMessage, QuestionAnswer, ResumeFile)
// against its struct tags and reports the first offending field as a
// validation error.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		fe := ves[0]
		field := strings.ToLower(fe.Field())
		return Invalid(field, field+" failed "+fe.Tag()+" check")
	}
	return Invalid("", err.Error())
}
