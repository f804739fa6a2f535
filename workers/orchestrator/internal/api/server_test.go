package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"adimporter/shared/domain/entity/creative"
	"adimporter/shared/domain/entity/job"
	obsmocks "adimporter/shared/observability/mocks"

	"adimporter/workers/orchestrator/internal/jobs"
	"adimporter/workers/orchestrator/mocks"
)

const batch = `[{"ad_archive_id":"1"}]`

func newTestServer(t *testing.T, hashes HashLister) (*httptest.Server, *mocks.MockJobController) {
	t.Helper()
	controller := &mocks.MockJobController{}
	s := NewServer(
		Config{ServiceName: "orchestrator", MaxBatchBytes: 1024, DefaultThreshold: 4},
		controller,
		hashes,
		obsmocks.NewPermissiveLogger(),
		obsmocks.NewPermissiveMetrics(),
	)
	s.AddReadinessCheck("always", func(context.Context) error { return nil })
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, controller
}

func decodeError(t *testing.T, resp *http.Response) ErrorInfo {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error
}

func TestStartImport_RawBody(t *testing.T) {
	srv, controller := newTestServer(t, nil)
	controller.On("Start", mock.Anything, []byte(batch), true).
		Return(&jobs.StartResult{JobID: "job-1", RecordCount: 1}, nil)

	resp, err := http.Post(srv.URL+"/v1/imports?debug=true", "application/json", strings.NewReader(batch))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "job-1", body["jobId"])
	assert.Equal(t, float64(1), body["recordCount"])
	controller.AssertExpectations(t)
}

func TestStartImport_MultipartUpload(t *testing.T) {
	srv, controller := newTestServer(t, nil)
	controller.On("Start", mock.Anything, []byte(batch), false).
		Return(&jobs.StartResult{JobID: "job-2", RecordCount: 1}, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "ads.json")
	require.NoError(t, err)
	_, err = io.WriteString(part, batch)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/v1/imports", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	controller.AssertExpectations(t)
}

func TestStartImport_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		startErr   error
		wantStatus int
		wantCode   string
	}{
		{"invalid batch", "nope", fmt.Errorf("%w: unsupported input shape", jobs.ErrInvalidBatch), http.StatusBadRequest, "INVALID_BATCH"},
		{"spawn failure", batch, fmt.Errorf("%w: exec: not found", jobs.ErrSpawnFailed), http.StatusInternalServerError, "START_FAILED"},
		{"too large", strings.Repeat("x", 2048), nil, http.StatusRequestEntityTooLarge, "BATCH_TOO_LARGE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, controller := newTestServer(t, nil)
			if tt.startErr != nil {
				controller.On("Start", mock.Anything, []byte(tt.body), false).Return(nil, tt.startErr)
			}

			resp, err := http.Post(srv.URL+"/v1/imports", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			info := decodeError(t, resp)
			assert.Equal(t, tt.wantCode, info.Code)
			assert.Equal(t, resp.Header.Get("X-Request-ID"), info.RequestID)
			controller.AssertExpectations(t)
		})
	}
}

func TestGetImport(t *testing.T) {
	srv, controller := newTestServer(t, nil)

	j := job.New("job-1", 3, time.Now())
	require.NoError(t, j.MarkRunning(10, time.Now()))
	j.Counters = job.Counters{OK: 1, Processed: 1, Total: 3}
	tail := []string{"a", "b"}
	controller.On("Poll", mock.Anything, "job-1", true).
		Return(&jobs.View{Job: j, StdoutTail: tail}, nil)
	controller.On("Poll", mock.Anything, "missing", false).Return(nil, job.ErrJobNotFound)

	resp, err := http.Get(srv.URL + "/v1/imports/job-1?debug=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		JobID      string       `json:"jobId"`
		Status     string       `json:"status"`
		Counters   job.Counters `json:"counters"`
		StdoutTail []string     `json:"stdout_tail"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "job-1", body.JobID)
	assert.Equal(t, "running", body.Status)
	assert.Equal(t, 1, body.Counters.OK)
	assert.Equal(t, tail, body.StdoutTail)

	resp, err = http.Get(srv.URL + "/v1/imports/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "JOB_NOT_FOUND", decodeError(t, resp).Code)
}

func TestStopImport(t *testing.T) {
	srv, controller := newTestServer(t, nil)

	j := job.New("job-1", 3, time.Now())
	j.RequestStop(time.Now())
	controller.On("Stop", mock.Anything, "job-1").Return(j, nil)

	resp, err := http.Post(srv.URL+"/v1/imports/job-1/stop", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body, "stopRequestedAt")

	resp, err = http.Get(srv.URL + "/v1/imports/job-1/stop")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestGetReport(t *testing.T) {
	srv, controller := newTestServer(t, nil)

	dir := t.TempDir()
	reportPath := filepath.Join(dir, "report.csv")
	content := "id,status\n1,ok\n"
	require.NoError(t, os.WriteFile(reportPath, []byte(content), 0o644))

	ready := job.New("job-1", 1, time.Now())
	ready.ReportPath = reportPath
	pending := job.New("job-2", 1, time.Now())
	pending.ReportPath = filepath.Join(dir, "missing.csv")
	controller.On("Poll", mock.Anything, "job-1", false).Return(&jobs.View{Job: ready}, nil)
	controller.On("Poll", mock.Anything, "job-2", false).Return(&jobs.View{Job: pending}, nil)

	resp, err := http.Get(srv.URL + "/v1/imports/job-1/report")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))

	resp, err = http.Get(srv.URL + "/v1/imports/job-2/report")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "REPORT_NOT_FOUND", decodeError(t, resp).Code)
}

func TestVariations(t *testing.T) {
	hashes := &mocks.MockHashLister{}
	hashes.On("ListHashes", mock.Anything).Return([]creative.HashedCreative{
		{AdArchiveID: "a", PHash: "ffffffffffffffff"},
		{AdArchiveID: "b", PHash: "fffffffffffffffe"},
		{AdArchiveID: "c", PHash: "0000000000000000"},
	}, nil)
	srv, _ := newTestServer(t, hashes)

	resp, err := http.Get(srv.URL + "/v1/creatives/variations?threshold=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body VariationsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Threshold)
	require.Len(t, body.Items, 3)

	counts := map[string]int{}
	for _, item := range body.Items {
		counts[item.ID] = item.VariationCount
	}
	assert.Equal(t, map[string]int{"a": 2, "b": 2, "c": 1}, counts)
	assert.Equal(t, "c", body.Items[2].ID)

	resp, err = http.Get(srv.URL + "/v1/creatives/variations?threshold=-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVariations_Errors(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/v1/creatives/variations")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	hashes := &mocks.MockHashLister{}
	hashes.On("ListHashes", mock.Anything).Return(nil, errors.New("connection refused"))
	srv, _ = newTestServer(t, hashes)
	resp, err = http.Get(srv.URL + "/v1/creatives/variations")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHealthAndReadiness(t *testing.T) {
	controller := &mocks.MockJobController{}
	s := NewServer(Config{ServiceName: "orchestrator"}, controller, nil,
		obsmocks.NewPermissiveLogger(), obsmocks.NewPermissiveMetrics())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	for _, path := range []string{"/health", "/healthz", "/ready", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	s.AddReadinessCheck("database", func(context.Context) error { return errors.New("ping failed") })
	resp, err := http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, map[string]interface{}{"database": "ping failed"}, body["checks"])
}

func TestRequestIDIsPropagated(t *testing.T) {
	srv, controller := newTestServer(t, nil)
	controller.On("Stop", mock.Anything, "job-1").Return(job.New("job-1", 1, time.Now()), nil)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/imports/job-1/stop", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-123")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
}
