package certificates

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockService is a mock implementation of the Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) Issue(ctx context.Context, req Request) (*WorkflowOutcome, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*WorkflowOutcome), args.Error(1)
}

// MockLinker is a mock implementation of the ArtifactLinker interface
type MockLinker struct {
	mock.Mock
}

func (m *MockLinker) URL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Error(1)
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(h *Handler) *gin.Engine {
	router := gin.New()
	h.RegisterRoutes(router)
	return router
}

func formBody() url.Values {
	return url.Values{
		"name":       {"Asha Rao"},
		"domain":     {"Data Science"},
		"month":      {"3"},
		"start_date": {"2025-01-01"},
		"end_date":   {"2025-03-31"},
		"email":      {"asha@example.com"},
		"grade":      {"A"},
	}
}

func deliveredOutcome(t *testing.T) *WorkflowOutcome {
	t.Helper()
	path := filepath.Join(t.TempDir(), "certificate.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7"), 0o644))

	rec := NewRecord(validRequest(), "AB12CD34E")
	rec.Status = StatusSent
	out := &WorkflowOutcome{
		RequestID:    "req-1",
		Record:       rec,
		ArtifactPath: path,
		ArtifactName: rec.ArtifactName(".pdf"),
		State:        "done",
	}
	out.add(StepValidate, StepOK, nil, 0)
	out.add(StepNotify, StepOK, nil, 0)
	out.add(StepLog, StepOK, nil, 0)
	return out
}

func postForm(router *gin.Engine, values url.Values, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/certificates", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandler_ShowForm(t *testing.T) {
	router := newRouter(NewHandler(new(MockService), nil, zap.NewNop()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	body := w.Body.String()
	assert.Contains(t, body, `<form method="post" action="/certificates">`)
	assert.Contains(t, body, `<option selected>A+</option>`)
	assert.Contains(t, body, `name="start_date" type="date"`)
}

func TestHandler_IssueRendersResultAndServesDownload(t *testing.T) {
	service := new(MockService)
	outcome := deliveredOutcome(t)
	service.On("Issue", mock.Anything, mock.MatchedBy(func(r Request) bool {
		return r.Name == "Asha Rao" && r.Months == 3 &&
			r.StartDate.Equal(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)) &&
			r.EndDate.Equal(time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC))
	})).Return(outcome, nil).Once()

	router := newRouter(NewHandler(service, nil, zap.NewNop()))

	w := postForm(router, formBody(), "text/html")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "AB12CD34E")
	assert.Contains(t, body, `<a href="/certificates/req-1/download">Download Certificate_Asha Rao.pdf</a>`)
	service.AssertExpectations(t)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/certificates/req-1/download", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="Certificate_Asha Rao.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.7", w.Body.String())
}

func TestHandler_IssueJSON(t *testing.T) {
	service := new(MockService)
	service.On("Issue", mock.Anything, mock.AnythingOfType("certificates.Request")).Return(deliveredOutcome(t), nil).Once()
	router := newRouter(NewHandler(service, nil, zap.NewNop()))

	body := `{"name":"Asha Rao","domain":"Data Science","month":3,"start_date":"2025-01-01","end_date":"2025-03-31","email":"asha@example.com","grade":"A"}`
	req := httptest.NewRequest(http.MethodPost, "/certificates", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Delivered   bool   `json:"delivered"`
		DownloadURL string `json:"download_url"`
		Outcome     struct {
			Record struct {
				ID     string `json:"certificate_id"`
				Status string `json:"status"`
			} `json:"record"`
			Steps []struct {
				Step   string `json:"step"`
				Status string `json:"status"`
			} `json:"steps"`
		} `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Delivered)
	assert.Equal(t, "/certificates/req-1/download", resp.DownloadURL)
	assert.Equal(t, "AB12CD34E", resp.Outcome.Record.ID)
	assert.Equal(t, StatusSent, resp.Outcome.Record.Status)
	assert.Len(t, resp.Outcome.Steps, 3)
}

func TestHandler_IssueRejectsMalformedDates(t *testing.T) {
	service := new(MockService)
	router := newRouter(NewHandler(service, nil, zap.NewNop()))

	values := formBody()
	values.Set("start_date", "01/01/2025")
	w := postForm(router, values, "application/json")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "must be a date (YYYY-MM-DD)", resp.Fields["start_date"])
	service.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything)
}

func TestHandler_IssueValidationErrorRedisplaysForm(t *testing.T) {
	service := new(MockService)
	verr := &ValidationError{Fields: map[string]string{"email": "is not a valid email address"}}
	out := &WorkflowOutcome{RequestID: "req-2", State: "done"}
	out.add(StepValidate, StepFailed, verr, 0)
	service.On("Issue", mock.Anything, mock.Anything).Return(out, out.Err()).Once()
	router := newRouter(NewHandler(service, nil, zap.NewNop()))

	values := formBody()
	values.Set("email", "not-an-email")
	w := postForm(router, values, "")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `<span class="error">is not a valid email address</span>`)
	assert.Contains(t, body, `value="not-an-email"`)
	assert.Contains(t, body, `value="Asha Rao"`)
}

func TestHandler_DownloadUnknown(t *testing.T) {
	router := newRouter(NewHandler(new(MockService), nil, zap.NewNop()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/certificates/nope/download", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_DownloadFallsBackToArchive(t *testing.T) {
	service := new(MockService)
	outcome := deliveredOutcome(t)
	outcome.ArchiveKey = "issued/AB12CD34E.pdf"
	service.On("Issue", mock.Anything, mock.Anything).Return(outcome, nil).Once()

	linker := new(MockLinker)
	linker.On("URL", mock.Anything, "issued/AB12CD34E.pdf", downloadURLTTL).
		Return("https://bucket.example.com/issued/AB12CD34E.pdf?sig=1", nil).Once()

	router := newRouter(NewHandler(service, linker, zap.NewNop()))
	require.Equal(t, http.StatusOK, postForm(router, formBody(), "application/json").Code)
	require.NoError(t, os.Remove(outcome.ArtifactPath))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/certificates/req-1/download", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://bucket.example.com/issued/AB12CD34E.pdf?sig=1", w.Header().Get("Location"))
	linker.AssertExpectations(t)
}

func TestHandler_DownloadGoneWithoutArchive(t *testing.T) {
	service := new(MockService)
	outcome := deliveredOutcome(t)
	service.On("Issue", mock.Anything, mock.Anything).Return(outcome, nil).Once()

	router := newRouter(NewHandler(service, nil, zap.NewNop()))
	require.Equal(t, http.StatusOK, postForm(router, formBody(), "application/json").Code)
	require.NoError(t, os.Remove(outcome.ArtifactPath))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/certificates/req-1/download", nil))
	assert.Equal(t, http.StatusGone, w.Code)
}
