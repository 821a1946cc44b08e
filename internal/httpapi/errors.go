package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"glbd/internal/admission"
	"glbd/internal/engine"
	"glbd/internal/manager"
	"glbd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// Error classes reported in ErrorResponse.Error.
const (
	errClassQueueFull         = "queue_full"
	errClassQueueTimeout      = "queue_timeout"
	errClassQueuePurged       = "queue_purged"
	errClassRequestTimeout    = "request_timeout"
	errClassInvalidInput      = "invalid_input"
	errClassUnsupportedMedia  = "unsupported_media"
	errClassPayloadTooLarge   = "payload_too_large"
	errClassModuleUnavailable = "module_unavailable"
	errClassModuleNotFound    = "module_not_found"
	errClassCodecTimeout      = "codec_timeout"
	errClassProcessingFailed  = "processing_failed"
)

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeErrorResponse(w, types.ErrorResponse{Error: http.StatusText(status), Message: msg, Code: status})
}

func writeErrorResponse(w http.ResponseWriter, resp types.ErrorResponse) {
	if resp.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfterSeconds))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Code)
	_ = json.NewEncoder(w).Encode(resp)
}

// errorResponse classifies err into a status code and payload.
func errorResponse(err error) types.ErrorResponse {
	if re, ok := admission.IsOverloaded(err); ok {
		st := endpointStatus(re.Stats)
		return types.ErrorResponse{
			Error:             rejectionClass(re.Reason),
			Message:           re.Error(),
			Code:              http.StatusServiceUnavailable,
			Queue:             &st,
			RetryAfterSeconds: retrySeconds(re.RetryAfter()),
		}
	}
	var (
		he HTTPError
		rq requestError
	)
	switch {
	case errors.As(err, &rq):
		return types.ErrorResponse{Error: rq.class, Message: rq.msg, Code: rq.code}
	case admission.IsRequestTimeout(err):
		return types.ErrorResponse{Error: errClassRequestTimeout, Message: err.Error(), Code: http.StatusGatewayTimeout}
	case manager.IsUnsupportedMedia(err):
		return types.ErrorResponse{Error: errClassUnsupportedMedia, Message: err.Error(), Code: http.StatusUnsupportedMediaType}
	case manager.IsInvalidInput(err):
		return types.ErrorResponse{Error: errClassInvalidInput, Message: err.Error(), Code: http.StatusBadRequest}
	case manager.IsModuleNotFound(err):
		return types.ErrorResponse{Error: errClassModuleNotFound, Message: err.Error(), Code: http.StatusNotFound}
	case manager.IsModuleUnavailable(err):
		resp := types.ErrorResponse{Error: errClassModuleUnavailable, Message: err.Error(), Code: http.StatusServiceUnavailable}
		if remaining, open := engine.IsCircuitOpen(err); open {
			resp.RetryAfterSeconds = retrySeconds(remaining)
		}
		return resp
	case manager.IsCodecTimeout(err):
		return types.ErrorResponse{Error: errClassCodecTimeout, Message: err.Error(), Code: http.StatusGatewayTimeout}
	case errors.As(err, &he):
		return types.ErrorResponse{Error: http.StatusText(he.StatusCode()), Message: he.Error(), Code: he.StatusCode()}
	default:
		return types.ErrorResponse{Error: errClassProcessingFailed, Message: err.Error(), Code: http.StatusInternalServerError}
	}
}

func rejectionClass(reason error) string {
	switch {
	case errors.Is(reason, admission.ErrQueueTimeout):
		return errClassQueueTimeout
	case errors.Is(reason, admission.ErrQueuePurged):
		return errClassQueuePurged
	default:
		return errClassQueueFull
	}
}

func retrySeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

// requestError is a malformed request detected by the HTTP layer before the
// service is called.
type requestError struct {
	class string
	msg   string
	code  int
}

func (e requestError) Error() string   { return e.msg }
func (e requestError) StatusCode() int { return e.code }

// errShuttingDown replaces the error of work cancelled by server shutdown.
var errShuttingDown = requestError{class: "shutting_down", msg: "server shutting down", code: http.StatusServiceUnavailable}

func invalidRequest(msg string) error {
	return requestError{class: errClassInvalidInput, msg: msg, code: http.StatusBadRequest}
}
