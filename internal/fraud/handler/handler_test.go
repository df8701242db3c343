package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confirmit/internal/fraud/models"
	"confirmit/internal/identity"
	rlmiddleware "confirmit/internal/ratelimit/middleware"
	rlmodels "confirmit/internal/ratelimit/models"
	rlservice "confirmit/internal/ratelimit/service"
	"confirmit/internal/ratelimit/store/bucket"
	"confirmit/pkg/domain"
	dErrors "confirmit/pkg/domain-errors"
	"confirmit/pkg/platform/middleware/admin"
)

const adminToken = "secret-token"

type stubService struct {
	reports map[domain.ReportID]*models.Report
}

func newStub() *stubService {
	return &stubService{reports: map[domain.ReportID]*models.Report{}}
}

func (s *stubService) File(_ context.Context, subject domain.SubjectHash, category, description string) (*models.Report, error) {
	r, err := models.NewReport(domain.NewReportID(), subject, category, description, time.Now())
	if err != nil {
		return nil, err
	}
	s.reports[r.ID] = r
	return r, nil
}

func (s *stubService) ListBySubject(_ context.Context, subject domain.SubjectHash, _ int) ([]*models.Report, error) {
	var out []*models.Report
	for _, r := range s.reports {
		if r.Subject == subject {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubService) Review(_ context.Context, id domain.ReportID, to models.Status) (*models.Report, error) {
	r, ok := s.reports[id]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "report not found")
	}
	if err := r.ApplyReview(to, time.Now()); err != nil {
		return nil, err
	}
	return r, nil
}

func newRouter(svc Service, opts ...Option) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(svc, logger, opts...)
	r := chi.NewRouter()
	h.Register(r)
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(adminToken, logger))
		h.RegisterAdmin(r)
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReportListAndReview(t *testing.T) {
	router := newRouter(newStub())
	subject, err := identity.Hash("0123456789")
	require.NoError(t, err)

	rec := do(t, router, http.MethodPost, "/api/accounts/report-fraud",
		`{"account_number":"0123456789","category":"fake_receipt","description":"sent an edited transfer receipt"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID      string `json:"report_id"`
		Subject string `json:"account_hash"`
		Status  string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, subject.String(), created.Subject)
	assert.Equal(t, "pending", created.Status)
	_, err = domain.ParseReportID(created.ID)
	require.NoError(t, err, "report_id must be a uuid string")

	rec = do(t, router, http.MethodGet, "/api/accounts/"+subject.String()+"/reports?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(t, 1, list.Count)

	path := "/api/accounts/reports/" + created.ID + "/review"
	rec = do(t, router, http.MethodPost, path, `{"status":"verified"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, router, http.MethodPost, path, `{"status":" Verified "}`, admin.HeaderAdminToken, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"verified"`)
}

func TestReportValidation(t *testing.T) {
	router := newRouter(newStub())

	rec := do(t, router, http.MethodPost, "/api/accounts/report-fraud", `{"account_number":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/accounts/nothex/reports", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	subject, err := identity.Hash("0123456789")
	require.NoError(t, err)
	rec = do(t, router, http.MethodGet, "/api/accounts/"+subject.String()+"/reports?limit=ten", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/accounts/"+subject.String()+"/reports", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":0,"reports":[]}`, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/accounts/reports/not-a-uuid/review", `{"status":"verified"}`,
		admin.HeaderAdminToken, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/accounts/reports/"+domain.NewReportID().String()+"/review",
		`{"status":"archived"}`, admin.HeaderAdminToken, adminToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportRateLimited(t *testing.T) {
	limiter, err := rlservice.New(bucket.New(), map[rlmodels.EndpointClass]rlmodels.Limit{
		rlmodels.ClassReport: {Requests: 1, Window: time.Hour},
	})
	require.NoError(t, err)
	mw := rlmiddleware.New(limiter, slog.New(slog.NewTextHandler(io.Discard, nil)))
	router := newRouter(newStub(), WithRateLimit(mw.RateLimit(rlmodels.ClassReport)))

	body := `{"account_number":"0123456789","category":"fake_receipt","description":"edited receipt"}`
	rec := do(t, router, http.MethodPost, "/api/accounts/report-fraud", body, "X-Forwarded-For", "192.0.2.10")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/accounts/report-fraud", body, "X-Forwarded-For", "192.0.2.10")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	subject, err := identity.Hash("0123456789")
	require.NoError(t, err)
	rec = do(t, router, http.MethodGet, "/api/accounts/"+subject.String()+"/reports", "", "X-Forwarded-For", "192.0.2.10")
	assert.Equal(t, http.StatusOK, rec.Code, "reads are not limited")
}
