package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// Bind decodes the JSON body into dst and runs struct validation. Decode failures map to
// ErrBadRequest, validation failures to shared.ErrInvalidInput.
func Bind(r *http.Request, validate *validator.Validate, dst any) error {
	if err := DecodeJSON(r, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if validate == nil {
		return nil
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			parts := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%s: %w", strings.Join(parts, "; "), shared.ErrInvalidInput)
		}
		return fmt.Errorf("%v: %w", err, shared.ErrInvalidInput)
	}
	return nil
}

// IDParam parses a positive int64 URL parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", ErrBadRequest, name, raw)
	}
	return id, nil
}

// QueryInt64 parses an optional int64 query parameter.
func QueryInt64(r *http.Request, name string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s %q", ErrBadRequest, name, raw)
	}
	return &v, nil
}

// QueryDate parses a YYYY-MM-DD query parameter, falling back to def when absent.
func QueryDate(r *http.Request, name string, def time.Time) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	d, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid %s %q", ErrBadRequest, name, raw)
	}
	return d, nil
}

// ParseDate parses a YYYY-MM-DD body field.
func ParseDate(field, raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s %q: %w", field, raw, shared.ErrInvalidInput)
	}
	return d, nil
}
