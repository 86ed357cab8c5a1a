package handlers

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"familygallery/internal/service"
	"familygallery/internal/validation"
)

const (
	CodeInvalidArgument   = "invalid_argument"
	CodeUnauthorized      = "unauthorized"
	CodeForbidden         = "forbidden"
	CodeNotFound          = "not_found"
	CodeQuotaExceeded     = "quota_exceeded"
	CodeRateLimited       = "rate_limited"
	CodeDependencyFailure = "dependency_failure"
	CodeInternal          = "internal"
)

type errorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Limit   *int              `json:"limit,omitempty"`
	Current *int              `json:"current,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondWithError(w http.ResponseWriter, logger logrus.FieldLogger, status int, code, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		entry := logger.WithError(err).WithField("status", status)
		if status >= http.StatusInternalServerError {
			entry.Error(logMsg)
		} else {
			entry.Debug(logMsg)
		}
	}

	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: userMsg}})
}

// writeServiceError maps the service error taxonomy onto HTTP responses
func writeServiceError(w http.ResponseWriter, logger logrus.FieldLogger, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
			Code: CodeInvalidArgument, Message: "invalid request", Fields: verr.Fields,
		}})
		return
	}

	var qerr *service.QuotaExceededError
	if errors.As(err, &qerr) {
		limit, current := qerr.Limit, qerr.Current
		writeJSON(w, http.StatusConflict, errorBody{Error: errorDetail{
			Code: CodeQuotaExceeded, Message: qerr.Error(), Limit: &limit, Current: &current,
		}})
		return
	}

	var rerr *service.RateLimitError
	if errors.As(err, &rerr) {
		setRetryAfter(w, rerr.RetryAfter.Seconds())
		respondWithError(w, logger, http.StatusTooManyRequests, CodeRateLimited, "too many requests", "", nil)
		return
	}

	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		respondWithError(w, logger, http.StatusBadRequest, CodeInvalidArgument, err.Error(), "", err)
	case errors.Is(err, service.ErrUnauthorized):
		respondWithError(w, logger, http.StatusUnauthorized, CodeUnauthorized, "unauthorized", "", err)
	case errors.Is(err, service.ErrForbidden):
		respondWithError(w, logger, http.StatusForbidden, CodeForbidden, "forbidden", "", err)
	case errors.Is(err, service.ErrNotFound):
		respondWithError(w, logger, http.StatusNotFound, CodeNotFound, "not found", "", err)
	case errors.Is(err, service.ErrRateLimited):
		respondWithError(w, logger, http.StatusTooManyRequests, CodeRateLimited, "too many requests", "", err)
	case errors.Is(err, service.ErrDependencyFailure):
		respondWithError(w, logger, http.StatusServiceUnavailable, CodeDependencyFailure, "a dependency failed, retry later", "dependency failure", err)
	default:
		respondWithError(w, logger, http.StatusInternalServerError, CodeInternal, "internal server error", "unhandled error", err)
	}
}

func setRetryAfter(w http.ResponseWriter, seconds float64) {
	secs := int(math.Ceil(seconds))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(service.ErrInvalidArgument, "malformed JSON body")
	}
	return validation.Struct(v)
}
