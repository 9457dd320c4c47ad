package httputil

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator checks `validate` struct tags on decoded request bodies.
var Validator = validator.New(validator.WithRequiredStructEnabled())

// ValidationError writes a 400 listing the fields that failed validation.
func ValidationError(log *slog.Logger, w http.ResponseWriter, err error) {
	log.Warn("request validation failed", "err", err)

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		WriteError(w, http.StatusBadRequest, "invalid request")
		return
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	WriteError(w, http.StatusBadRequest, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "latitude", "longitude", "email", "numeric":
		return fmt.Sprintf("%s must be a valid %s", field, fe.Tag())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
