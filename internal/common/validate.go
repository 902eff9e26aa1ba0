package common

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// validate caches struct metadata and is safe for concurrent use.
var validate = validator.New()

// ValidateStruct runs the `validate` tags of v and converts failures into a
// validation error naming every offending field.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return WithError(err).Mark(ErrValidation)
	}

	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
	}
	return NewErrorf("invalid %s", strings.Join(fields, ", ")).
		WithHint("check the highlighted fields and try again").
		Mark(ErrValidation)
}
