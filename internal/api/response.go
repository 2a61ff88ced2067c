// Package api is the inbound HTTP surface for habit actions. It carries the
// skip and snooze endpoints, the health probe, and the small middleware
// chain they share.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"habitpulse/internal/actions"
	"habitpulse/internal/types"
)

// maxRequestBodySize is the maximum allowed size of a request body (64 KB).
// Action payloads are tiny; anything larger is abuse.
const maxRequestBodySize = 64 << 10

// APIResponse is the envelope for successful responses.
type APIResponse struct {
	Data any `json:"data,omitempty"`
}

// APIErrorResponse is the envelope for error responses.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the structured error information returned to clients. The
// Classification block is present only for classified delivery and storage
// failures; clients render its message and icon verbatim.
type ErrorDetail struct {
	Code           string          `json:"code"`
	Message        string          `json:"message"`
	Details        map[string]any  `json:"details,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
	RequestID      string          `json:"request_id"`
}

// Classification mirrors the classifier output with JSON tags for the wire.
type Classification struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Icon     string `json:"icon"`
}

// JSON writes a JSON response with the given status code and data.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fallback := APIErrorResponse{
			Error: ErrorDetail{
				Code:      string(types.ErrCodeInternalUnexpected),
				Message:   "failed to marshal response",
				RequestID: types.GetRequestID(r.Context()),
			},
		}
		_ = json.NewEncoder(w).Encode(fallback)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes an error response to the client. It inspects the error chain:
//   - A *actions.ActionError carries a user-facing classification; the
//     response includes it and the status comes from the wrapped error.
//   - A *types.AppError maps through its code's HTTP status.
//   - Anything else becomes a 500 with a safe generic message.
//
// Wrapped internal detail is never exposed to the client.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	requestID := types.GetRequestID(r.Context())

	var actionErr *actions.ActionError
	if errors.As(err, &actionErr) {
		cls := actionErr.Classification
		detail := ErrorDetail{
			Code:    classificationCode(cls.Category),
			Message: cls.Message,
			Classification: &Classification{
				Category: string(cls.Category),
				Message:  cls.Message,
				Icon:     cls.Icon,
			},
			RequestID: requestID,
		}
		JSON(w, r, classificationStatus(cls.Category), APIErrorResponse{Error: detail})
		return
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		JSON(w, r, appErr.HTTPStatus(), APIErrorResponse{
			Error: ErrorDetail{
				Code:      string(appErr.Code),
				Message:   appErr.Message,
				Details:   appErr.Details,
				RequestID: requestID,
			},
		})
		return
	}

	JSON(w, r, http.StatusInternalServerError, APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(types.ErrCodeInternalUnexpected),
			Message:   "an unexpected error occurred",
			RequestID: requestID,
		},
	})
}

// classificationStatus maps an error category to an HTTP status. Connection
// trouble is transient, so it reports as 503 rather than a generic 500.
func classificationStatus(category types.ErrorCategory) int {
	switch category {
	case types.ErrorCategoryConnection:
		return http.StatusServiceUnavailable
	case types.ErrorCategoryDataFetch:
		return http.StatusBadGateway
	case types.ErrorCategoryValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func classificationCode(category types.ErrorCategory) string {
	return "classified_" + string(category)
}

// errCodeValidationInvalidJSON is local to the HTTP surface; nothing below
// the handlers produces it.
const errCodeValidationInvalidJSON types.ErrorCode = "validation_invalid_json"

// DecodeJSON reads the request body into dst, enforcing the body size limit
// and rejecting unknown fields. Failures come back as 400 AppErrors.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return mapDecodeError(err)
	}
	if dec.More() {
		return types.NewAppError(
			errCodeValidationInvalidJSON,
			"request body must contain a single JSON object",
			nil,
		)
	}
	return nil
}

// mapDecodeError translates a json.Decoder error into a structured AppError.
func mapDecodeError(err error) *types.AppError {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return types.NewAppError(errCodeValidationInvalidJSON, "request body too large", err)
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return types.NewAppError(errCodeValidationInvalidJSON, "malformed JSON in request body", err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return types.NewAppError(errCodeValidationInvalidJSON,
			"invalid type for field "+typeErr.Field, err)
	}

	if errors.Is(err, io.EOF) {
		return types.NewAppError(errCodeValidationInvalidJSON, "request body must not be empty", err)
	}

	// json.Decoder reports unknown fields as a plain error string.
	return types.NewAppError(errCodeValidationInvalidJSON, "invalid request body", err)
}
