package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"adimporter/shared/observability/types"
)

// ErrorInfo is the error body of every failed request.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

type errorResponse struct {
	Error ErrorInfo `json:"error"`
}

// sendResponse writes v as JSON.
func (s *Server) sendResponse(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error(r.Context(), "Failed to encode response", err, nil)
	}
}

func (s *Server) sendError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	fields := types.Fields{"status": status, "code": code}
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "Request failed", err, fields)
	} else {
		fields["error"] = err.Error()
		s.logger.Info(r.Context(), "Request rejected", fields)
	}

	s.sendResponse(w, r, status, errorResponse{Error: ErrorInfo{
		Code:      code,
		Message:   err.Error(),
		RequestID: requestID(r.Context()),
	}})
}

func (s *Server) handleBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	s.sendError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err)
}

// statusRecorder captures the status code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// track assigns a request id and records request metrics for one route.
func (s *Server) track(operation string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := extractRequestID(r)
		if id == "" {
			id = uuid.New().String()
		}
		ctx := types.WithRequestID(r.Context(), id)
		if jobID := r.PathValue("id"); jobID != "" {
			ctx = types.WithJobID(ctx, jobID)
		}
		r = r.WithContext(ctx)
		w.Header().Set("X-Request-ID", id)

		s.logger.Debug(ctx, "HTTP request received", types.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"remote_addr": r.RemoteAddr,
		})
		s.metrics.StartOperation(operation)
		defer s.metrics.EndOperation(operation)
		startTime := time.Now()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		s.metrics.RecordDuration(operation, time.Since(startTime).Seconds())
		if rec.status >= http.StatusBadRequest {
			s.metrics.RecordError(operation, strconv.Itoa(rec.status))
			return
		}
		s.metrics.RecordSuccess(operation)
	}
}

// extractRequestID honors a caller supplied correlation id.
func extractRequestID(r *http.Request) string {
	for _, header := range []string{"X-Request-ID", "X-Correlation-ID", "Request-ID"} {
		if id := r.Header.Get(header); id != "" {
			return id
		}
	}
	return ""
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(types.RequestIDKey).(string)
	return id
}
