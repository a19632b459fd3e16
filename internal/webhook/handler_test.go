package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-webhook/internal/crm"
	"github.com/sells-group/lead-webhook/internal/intake"
	"github.com/sells-group/lead-webhook/internal/model"
	"github.com/sells-group/lead-webhook/internal/ratelimit"
	"github.com/sells-group/lead-webhook/internal/store"
	"github.com/sells-group/lead-webhook/pkg/ghl"
)

const validBody = `{"name":"Jane Mercado","email":"jane@x.com","phone":"(305) 555-0123","service_type":"smart_storage"}`

type submitFunc func(ctx context.Context, lead intake.Lead) (*crm.Result, error)

func (f submitFunc) Submit(ctx context.Context, lead intake.Lead) (*crm.Result, error) {
	return f(ctx, lead)
}

type limiterFunc func(ctx context.Context, key string) (bool, error)

func (f limiterFunc) Allow(ctx context.Context, key string) (bool, error) { return f(ctx, key) }

func allowAll(context.Context, string) (bool, error) { return true, nil }

// spyLedger records entries in memory.
type spyLedger struct {
	store.Noop
	mu      sync.Mutex
	entries []model.SubmissionLog
	err     error
}

func (s *spyLedger) RecordSubmission(_ context.Context, e *model.SubmissionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *e)
	return s.err
}

func (s *spyLedger) last(t *testing.T) model.SubmissionLog {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.entries)
	return s.entries[len(s.entries)-1]
}

func configured() Config {
	return Config{APIKeyConfigured: true, LocationIDConfigured: true, Version: "test"}
}

func created(ctx context.Context, lead intake.Lead) (*crm.Result, error) {
	return &crm.Result{
		Outcome:     model.OutcomeCreated,
		ContactID:   "c-1",
		Opportunity: &crm.OpportunityOutcome{ID: "o-1"},
	}, nil
}

func post(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/submit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:51234"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return rr, resp
}

func TestSubmit_Created(t *testing.T) {
	ledger := &spyLedger{}
	var got intake.Lead
	h := NewHandler(submitFunc(func(ctx context.Context, lead intake.Lead) (*crm.Result, error) {
		got = lead
		return created(ctx, lead)
	}), limiterFunc(allowAll), ledger, configured())

	rr, resp := post(t, http.HandlerFunc(h.Submit), validBody)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.True(t, resp.Success)
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, "c-1", resp.ContactID)
	assert.Equal(t, "o-1", resp.OpportunityID)

	assert.Equal(t, "Jane", got.FirstName)
	assert.Equal(t, "Mercado", got.LastName)

	entry := ledger.last(t)
	assert.Equal(t, model.OutcomeCreated, entry.Outcome)
	assert.Equal(t, "203.0.113.7", entry.ClientIP)
	assert.Equal(t, "jane@x.com", entry.Email)
	assert.Equal(t, "smart_storage", entry.ServiceType)
	assert.Equal(t, "o-1", entry.OpportunityID)
	assert.Empty(t, entry.Error)
}

func TestSubmit_Outcomes(t *testing.T) {
	tests := []struct {
		name       string
		result     *crm.Result
		wantStatus string
		wantOpp    string
	}{
		{
			name:       "duplicate with opportunity",
			result:     &crm.Result{Outcome: model.OutcomeDuplicate, ContactID: "c-old", Opportunity: &crm.OpportunityOutcome{ID: "o-2"}},
			wantStatus: StatusDuplicateOpportunity,
			wantOpp:    "o-2",
		},
		{
			name:       "duplicate opportunity failed",
			result:     &crm.Result{Outcome: model.OutcomeDuplicate, ContactID: "c-old", Opportunity: &crm.OpportunityOutcome{Err: errors.New("boom")}},
			wantStatus: StatusDuplicate,
		},
		{
			name:       "duplicate unresolved",
			result:     &crm.Result{Outcome: model.OutcomeDuplicateUnresolved},
			wantStatus: StatusDuplicateIgnored,
		},
		{
			name:       "created opportunity failed",
			result:     &crm.Result{Outcome: model.OutcomeCreated, ContactID: "c-1", Opportunity: &crm.OpportunityOutcome{Err: errors.New("boom")}},
			wantStatus: StatusSuccess,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(submitFunc(func(context.Context, intake.Lead) (*crm.Result, error) {
				return tt.result, nil
			}), limiterFunc(allowAll), nil, configured())

			rr, resp := post(t, http.HandlerFunc(h.Submit), validBody)
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.True(t, resp.Success)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.result.ContactID, resp.ContactID)
			assert.Equal(t, tt.wantOpp, resp.OpportunityID)
		})
	}
}

func TestSubmit_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		limiter     limiterFunc
		cfg         Config
		submitErr   error
		wantCode    int
		wantMessage string
		wantErrors  []string
		wantOutcome model.Outcome
		wantRecord  bool
	}{
		{
			name:        "not json",
			body:        `name=Jane`,
			wantCode:    http.StatusBadRequest,
			wantMessage: msgInvalidBody,
			wantOutcome: model.OutcomeInvalid,
			wantRecord:  true,
		},
		{
			name:        "json array",
			body:        `[1,2]`,
			wantCode:    http.StatusBadRequest,
			wantMessage: msgInvalidBody,
			wantOutcome: model.OutcomeInvalid,
			wantRecord:  true,
		},
		{
			name:        "invalid utf-8",
			body:        "{\"name\":\"Jane \xff\xfe\",\"email\":\"ja\xffne@x.com\",\"phone\":\"3055551234\"}",
			wantCode:    http.StatusBadRequest,
			wantMessage: msgInvalidBody,
			wantOutcome: model.OutcomeInvalid,
			wantRecord:  true,
		},
		{
			name:        "rate limited",
			body:        validBody,
			limiter:     func(context.Context, string) (bool, error) { return false, nil },
			wantCode:    http.StatusTooManyRequests,
			wantMessage: msgRateLimited,
			wantOutcome: model.OutcomeRateLimited,
			wantRecord:  true,
		},
		{
			name:        "limiter backend down",
			body:        validBody,
			limiter:     func(context.Context, string) (bool, error) { return false, errors.New("redis down") },
			wantCode:    http.StatusInternalServerError,
			wantMessage: msgInternalError,
		},
		{
			name:        "validation",
			body:        `{"name":"J","email":"bad","phone":"(305) 555-01"}`,
			wantCode:    http.StatusBadRequest,
			wantMessage: msgInvalidForm,
			wantErrors:  []string{intake.ErrNameInvalid, intake.ErrEmailFormat, intake.ErrPhoneFormat},
			wantOutcome: model.OutcomeInvalid,
			wantRecord:  true,
		},
		{
			name:        "missing location",
			body:        validBody,
			cfg:         Config{APIKeyConfigured: true},
			wantCode:    http.StatusInternalServerError,
			wantMessage: msgConfigError,
			wantOutcome: model.OutcomeFailed,
			wantRecord:  true,
		},
		{
			name:        "crm failure",
			body:        validBody,
			submitErr:   &ghl.APIError{Op: "create contact", StatusCode: 500, Body: "secret internal detail"},
			wantCode:    http.StatusInternalServerError,
			wantMessage: msgCRMError,
			wantOutcome: model.OutcomeFailed,
			wantRecord:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := tt.limiter
			if limiter == nil {
				limiter = allowAll
			}
			cfg := tt.cfg
			if cfg == (Config{}) {
				cfg = configured()
			}
			calls := 0
			ledger := &spyLedger{}
			h := NewHandler(submitFunc(func(context.Context, intake.Lead) (*crm.Result, error) {
				calls++
				if tt.submitErr != nil {
					return nil, tt.submitErr
				}
				return &crm.Result{Outcome: model.OutcomeCreated}, nil
			}), limiter, ledger, cfg)

			rr, resp := post(t, http.HandlerFunc(h.Submit), tt.body)

			assert.Equal(t, tt.wantCode, rr.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, StatusError, resp.Status)
			assert.Equal(t, tt.wantMessage, resp.Message)
			assert.Equal(t, tt.wantErrors, resp.Errors)
			assert.NotContains(t, rr.Body.String(), "secret internal detail")
			if tt.submitErr == nil {
				assert.Zero(t, calls, "crm must not be called")
			}

			if !tt.wantRecord {
				assert.Empty(t, ledger.entries)
				return
			}
			assert.Equal(t, tt.wantOutcome, ledger.last(t).Outcome)
		})
	}
}

func TestSubmit_DetachesCRMContext(t *testing.T) {
	var crmCtx context.Context
	h := NewHandler(submitFunc(func(ctx context.Context, lead intake.Lead) (*crm.Result, error) {
		crmCtx = ctx
		return created(ctx, lead)
	}), limiterFunc(allowAll), nil, configured())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/webhook/submit", strings.NewReader(validBody)).WithContext(ctx)
	rr := httptest.NewRecorder()
	h.Submit(rr, req)
	cancel()

	require.NotNil(t, crmCtx)
	assert.NoError(t, crmCtx.Err())
}

func TestSubmit_LedgerFailureDoesNotFailRequest(t *testing.T) {
	ledger := &spyLedger{err: errors.New("disk full")}
	h := NewHandler(submitFunc(created), limiterFunc(allowAll), ledger, configured())

	rr, resp := post(t, http.HandlerFunc(h.Submit), validBody)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, StatusSuccess, resp.Status)
}

func TestSubmit_RateLimitSixthRejected(t *testing.T) {
	limiter, err := ratelimit.NewMemory(ratelimit.DefaultConfig())
	require.NoError(t, err)
	h := NewHandler(submitFunc(created), limiter, nil, configured())

	for i := 0; i < 5; i++ {
		rr, _ := post(t, http.HandlerFunc(h.Submit), validBody)
		require.Equal(t, http.StatusOK, rr.Code, "request %d", i+1)
	}
	rr, resp := post(t, http.HandlerFunc(h.Submit), validBody)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, msgRateLimited, resp.Message)
}

func TestHealth(t *testing.T) {
	h := NewHandler(nil, nil, nil, Config{APIKeyConfigured: true})
	h.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	rr := httptest.NewRecorder()
	h.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Status    string          `json:"status"`
		Timestamp string          `json:"timestamp"`
		Config    map[string]bool `json:"config"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "2025-03-01T12:00:00Z", body.Timestamp)
	assert.Equal(t, map[string]bool{"api_key_configured": true, "location_id_configured": false}, body.Config)
}

func TestRoot(t *testing.T) {
	h := NewHandler(nil, nil, nil, Config{Version: "1.2.3"})
	rr := httptest.NewRecorder()
	h.Root(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"service":"lead-webhook"`)
	assert.Contains(t, rr.Body.String(), `"version":"1.2.3"`)
}

func TestScript_Embedded(t *testing.T) {
	h := NewHandler(nil, nil, nil, Config{})
	rr := httptest.NewRecorder()
	h.Script(rr, httptest.NewRequest(http.MethodGet, "/lead-capture.js", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/javascript; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Cache-Control"), "no-cache")
	assert.Contains(t, rr.Body.String(), "/webhook/submit")
}

func TestScript_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.js")
	require.NoError(t, os.WriteFile(path, []byte("console.log('custom');"), 0o644))

	h := NewHandler(nil, nil, nil, Config{ScriptPath: path})
	rr := httptest.NewRecorder()
	h.Script(rr, httptest.NewRequest(http.MethodGet, "/lead-capture.js", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "console.log('custom');", rr.Body.String())
}

func TestScript_OverrideMissing(t *testing.T) {
	h := NewHandler(nil, nil, nil, Config{ScriptPath: filepath.Join(t.TempDir(), "nope.js")})
	rr := httptest.NewRecorder()
	h.Script(rr, httptest.NewRequest(http.MethodGet, "/lead-capture.js", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", clientKey(req))

	req.RemoteAddr = "198.51.100.4"
	assert.Equal(t, "198.51.100.4", clientKey(req))
}
