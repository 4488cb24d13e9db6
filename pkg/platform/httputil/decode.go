package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "credregistry/pkg/domain-errors"
)

// Normalizable request types canonicalize themselves before validation, for
// example trimming a verification code or lower-casing an address.
type Normalizable interface {
	Normalize()
}

// Validatable request types check their own shape.
type Validatable interface {
	Validate() error
}

var (
	errEmptyBody    = dErrors.New(dErrors.CodeBadRequest, "request body is required")
	errMalformed    = dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	errTrailingData = dErrors.New(dErrors.CodeBadRequest, "request body must contain a single JSON object")
)

// DecodeJSON decodes exactly one JSON value from the request body into a new T.
// On failure it writes the error response and returns false: 413 when the body
// exceeded a MaxBytesReader limit, 400 otherwise.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	if err := decodeOne(r.Body, &req); err != nil {
		logger.WarnContext(ctx, "failed to decode request body",
			"error", err,
			"request_id", requestID,
		)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error":             "request_too_large",
				"error_description": "request body exceeds the allowed size",
			})
			return nil, false
		}
		WriteError(w, err)
		return nil, false
	}
	return &req, true
}

func decodeOne(body io.Reader, into any) error {
	if body == nil || body == http.NoBody {
		return errEmptyBody
	}
	dec := json.NewDecoder(body)
	if err := dec.Decode(into); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return err
		case errors.Is(err, io.EOF):
			return errEmptyBody
		default:
			return dErrors.Wrap(err, dErrors.CodeBadRequest, errMalformed.Error())
		}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return errTrailingData
	}
	return nil
}

// DecodeAndPrepare decodes the body into a new T, then runs Normalize and
// Validate when T implements them. Validation errors that are not domain errors
// are reported as validation_failed.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req, ok := DecodeJSON[T](w, r, logger, ctx, requestID)
	if !ok {
		return nil, false
	}

	if n, ok := any(req).(Normalizable); ok {
		n.Normalize()
	}
	v, ok := any(req).(Validatable)
	if !ok {
		return req, true
	}
	if err := v.Validate(); err != nil {
		logger.WarnContext(ctx, "invalid request",
			"error", err,
			"request_id", requestID,
		)
		var domainErr *dErrors.Error
		if !errors.As(err, &domainErr) {
			err = dErrors.New(dErrors.CodeValidation, err.Error())
		}
		WriteError(w, err)
		return nil, false
	}
	return req, true
}
