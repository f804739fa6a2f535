package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"time"

	"adimporter/shared/cluster"
	"adimporter/shared/domain/entity/job"
	"adimporter/shared/observability/types"

	"adimporter/workers/orchestrator/internal/jobs"
)

// uploadField is the multipart field carrying the batch file.
const uploadField = "file"

// VariationsResponse is the body of GET /v1/creatives/variations.
type VariationsResponse struct {
	Threshold int             `json:"threshold"`
	Items     []cluster.Ranked `json:"items"`
}

func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBatchBytes)
	defer r.Body.Close()

	batch, err := s.readBatch(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(w, r, http.StatusRequestEntityTooLarge, "BATCH_TOO_LARGE",
				fmt.Errorf("batch exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.handleBadRequest(w, r, err)
		return
	}

	res, err := s.jobs.Start(r.Context(), batch, queryBool(r, "debug"))
	switch {
	case errors.Is(err, jobs.ErrInvalidBatch):
		s.sendError(w, r, http.StatusBadRequest, "INVALID_BATCH", err)
	case err != nil:
		s.sendError(w, r, http.StatusInternalServerError, "START_FAILED", err)
	default:
		s.sendResponse(w, r, http.StatusAccepted, res)
	}
}

// readBatch accepts either a multipart upload or the raw request body.
func (s *Server) readBatch(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return io.ReadAll(r.Body)
	}

	file, _, err := r.FormFile(uploadField)
	if err != nil {
		return nil, fmt.Errorf("missing %q upload: %w", uploadField, err)
	}
	defer file.Close()
	return io.ReadAll(file)
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	view, err := s.jobs.Poll(r.Context(), r.PathValue("id"), queryBool(r, "debug"))
	if err != nil {
		s.sendJobError(w, r, err)
		return
	}
	s.sendResponse(w, r, http.StatusOK, view)
}

func (s *Server) handleStopImport(w http.ResponseWriter, r *http.Request) {
	j, err := s.jobs.Stop(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sendJobError(w, r, err)
		return
	}
	s.sendResponse(w, r, http.StatusOK, j)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	view, err := s.jobs.Poll(r.Context(), id, false)
	if err != nil {
		s.sendJobError(w, r, err)
		return
	}

	f, err := os.Open(view.ReportPath)
	if err != nil {
		s.sendError(w, r, http.StatusNotFound, "REPORT_NOT_FOUND", errors.New("report not available yet"))
		return
	}
	defer f.Close()

	modTime := time.Time{}
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".csv"))
	http.ServeContent(w, r, id+".csv", modTime, f)
}

func (s *Server) handleVariations(w http.ResponseWriter, r *http.Request) {
	if s.hashes == nil {
		s.sendError(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", errors.New("creative store not configured"))
		return
	}

	threshold := s.cfg.DefaultThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.handleBadRequest(w, r, fmt.Errorf("invalid threshold %q", raw))
			return
		}
		threshold = n
	}

	hashed, err := s.hashes.ListHashes(r.Context())
	if err != nil {
		s.sendError(w, r, http.StatusInternalServerError, "LIST_FAILED", err)
		return
	}

	items := make([]cluster.Item, len(hashed))
	for i, h := range hashed {
		items[i] = cluster.Item{ID: h.AdArchiveID, Hash: h.PHash}
	}
	s.sendResponse(w, r, http.StatusOK, VariationsResponse{
		Threshold: threshold,
		Items:     cluster.Rank(items, threshold),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendResponse(w, r, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": s.cfg.ServiceName,
		"time":    time.Now().UTC(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	failures := make(map[string]string)
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		s.logger.Warn(r.Context(), "Readiness check failed", types.Fields{"failures": failures})
		s.sendResponse(w, r, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unready",
			"checks": failures,
		})
		return
	}
	s.sendResponse(w, r, http.StatusOK, map[string]interface{}{"status": "ready"})
}

func (s *Server) sendJobError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, job.ErrJobNotFound) {
		s.sendError(w, r, http.StatusNotFound, "JOB_NOT_FOUND", err)
		return
	}
	s.sendError(w, r, http.StatusInternalServerError, "INTERNAL", err)
}

func queryBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}
