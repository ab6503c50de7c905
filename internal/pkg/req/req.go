/*
Package req provides helper functions for HTTP request parsing and data binding.

JSON bodies are decoded strictly (unknown fields rejected, a single value only) and
query parameters are read with defaults and bounds, so handlers deal with typed values
and *errs.CustomError only.
*/
package req

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"chatgate/internal/pkg/errs"
)

// MaxJSONBodyBytes bounds every JSON request body.
const MaxJSONBodyBytes int64 = 1 << 20 // 1 MB

// BindJSON decodes the JSON request body into dst.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.NewError(errs.ErrRequestEntityTooLarge)
		}
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}

// QueryInt reads a positive integer query parameter, returning def when absent.
// Values above max are clamped; non-numeric or non-positive values are rejected.
func QueryInt(r *http.Request, key string, def, max int) (int, *errs.CustomError) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errs.NewError(errs.ErrInvalidParams)
	}

	if max > 0 && n > max {
		n = max
	}

	return n, nil
}

// PathInt64 parses a positive int64 path value such as a room id.
func PathInt64(raw string) (int64, *errs.CustomError) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 1 {
		return 0, errs.NewError(errs.ErrInvalidParams)
	}
	return n, nil
}
