package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/lead-webhook/internal/crm"
	"github.com/sells-group/lead-webhook/internal/intake"
	"github.com/sells-group/lead-webhook/internal/model"
	"github.com/sells-group/lead-webhook/internal/ratelimit"
	"github.com/sells-group/lead-webhook/pkg/ghl"
)

func TestRouter_Endpoints(t *testing.T) {
	h := NewHandler(submitFunc(created), limiterFunc(allowAll), nil, configured())
	router := NewRouter(h, RouterConfig{})

	tests := []struct {
		method, path string
		wantCode     int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/lead-capture.js", http.StatusOK},
		{http.MethodGet, "/webhook/submit", http.StatusMethodNotAllowed},
		{http.MethodGet, "/missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantCode, rr.Code)
		})
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	h := NewHandler(submitFunc(created), limiterFunc(allowAll), nil, configured())
	router := NewRouter(h, RouterConfig{})

	req := httptest.NewRequest(http.MethodOptions, "/webhook/submit", nil)
	req.Header.Set("Origin", "https://www.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Less(t, rr.Code, 300)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestRouter_PanicBecomes500(t *testing.T) {
	h := NewHandler(submitFunc(func(context.Context, intake.Lead) (*crm.Result, error) {
		panic("nil map write")
	}), limiterFunc(allowAll), nil, configured())
	router := NewRouter(h, RouterConfig{})

	rr, resp := post(t, router, validBody)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, msgInternalError, resp.Message)
	assert.NotContains(t, rr.Body.String(), "nil map write")
}

func TestRouter_PanicIsAccessLogged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	h := NewHandler(submitFunc(func(context.Context, intake.Lead) (*crm.Result, error) {
		panic("boom")
	}), limiterFunc(allowAll), nil, configured())

	rr, _ := post(t, NewRouter(h, RouterConfig{}), validBody)
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	access := logs.FilterMessage("http request").All()
	require.Len(t, access, 1)
	assert.EqualValues(t, http.StatusInternalServerError, access[0].ContextMap()["status"])
	assert.Equal(t, 1, logs.FilterMessage("webhook: panic recovered").Len())
}

func TestRecover_ReplyAlreadyStarted(t *testing.T) {
	handler := Recover(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("partial"))
		panic("late failure")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "partial", rr.Body.String())
}

func TestRouter_TrustProxy(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		wantKey    string
	}{
		{name: "direct", trustProxy: false, wantKey: "203.0.113.7"},
		{name: "behind proxy", trustProxy: true, wantKey: "198.51.100.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var key string
			h := NewHandler(submitFunc(created), limiterFunc(func(_ context.Context, k string) (bool, error) {
				key = k
				return true, nil
			}), nil, configured())
			router := NewRouter(h, RouterConfig{TrustProxy: tt.trustProxy})

			req := httptest.NewRequest(http.MethodPost, "/webhook/submit", strings.NewReader(validBody))
			req.RemoteAddr = "203.0.113.7:51234"
			req.Header.Set("X-Forwarded-For", "198.51.100.9")
			router.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.wantKey, key)
		})
	}
}

// fakeCRM is an httptest stand-in for the GoHighLevel API.
type fakeCRM struct {
	mu            sync.Mutex
	duplicate     bool
	contacts      []map[string]any
	opportunities []map[string]any
}

func (f *fakeCRM) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))

		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.URL.Path {
		case "/contacts/":
			f.contacts = append(f.contacts, payload)
			if f.duplicate {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"statusCode":400,"message":"This location does not allow duplicated contacts.","meta":{"contactName":"Jane","contactId":"c-existing"}}`))
				return
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"contact":{"id":"c-new"}}`))
		case "/opportunities/":
			f.opportunities = append(f.opportunities, payload)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"opportunity":{"id":"o-new"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newEndToEnd(t *testing.T, fake *fakeCRM) http.Handler {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	client := ghl.NewClient("pit-test", "loc-1", ghl.WithBaseURL(srv.URL), ghl.WithTimeout(5*time.Second))
	gateway, err := crm.New(client, nil, crm.Config{},
		crm.WithClock(func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }))
	require.NoError(t, err)

	limiter, err := ratelimit.NewMemory(ratelimit.DefaultConfig())
	require.NoError(t, err)

	return NewRouter(NewHandler(gateway, limiter, nil, configured()), RouterConfig{})
}

func TestEndToEnd_NewLead(t *testing.T) {
	fake := &fakeCRM{}
	router := newEndToEnd(t, fake)

	body := `{"name":"Jane Mercado","email":"jane@x.com","phone":"3055550123","service_type":"global_ocean_freight",` +
		`"all_fields":{"origin_city":"Miami","destination":"Lima"},"page_url":"https://example.com/quote"}`
	rr, resp := post(t, router, body)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, "c-new", resp.ContactID)
	assert.Equal(t, "o-new", resp.OpportunityID)

	require.Len(t, fake.contacts, 1)
	contact := fake.contacts[0]
	assert.Equal(t, "loc-1", contact["locationId"])
	assert.Equal(t, "Jane", contact["firstName"])
	assert.Equal(t, "Mercado", contact["lastName"])
	assert.Equal(t, []any{"Global Ocean Freight", "Origen: Miami", "Destino: Lima"}, contact["tags"])

	require.Len(t, fake.opportunities, 1)
	opp := fake.opportunities[0]
	assert.Equal(t, "whbJC2QacciLQBfk9fHl", opp["pipelineId"])
	assert.Equal(t, "c-new", opp["contactId"])
	assert.Equal(t, "Global Ocean Freight - Jane Mercado - 2025-03-01 07:00", opp["name"])
}

func TestEndToEnd_DuplicateLead(t *testing.T) {
	fake := &fakeCRM{duplicate: true}
	router := newEndToEnd(t, fake)

	rr, resp := post(t, router, validBody)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, StatusDuplicateOpportunity, resp.Status)
	assert.Equal(t, "c-existing", resp.ContactID)
	require.Len(t, fake.contacts, 1)
	require.Len(t, fake.opportunities, 1)
	assert.Equal(t, "c-existing", fake.opportunities[0]["contactId"])
	assert.Equal(t, "zar5aTjIKP8srIK5x0qk", fake.opportunities[0]["pipelineId"])
}

func TestEndToEnd_InvalidLeadNeverReachesCRM(t *testing.T) {
	fake := &fakeCRM{}
	router := newEndToEnd(t, fake)

	rr, resp := post(t, router, `{"name":"Jane","email":"jane@x.com"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, []string{intake.ErrPhoneRequired}, resp.Errors)
	assert.Empty(t, fake.contacts)
}

func TestRespond(t *testing.T) {
	resp := respond(&crm.Result{Outcome: model.OutcomeCreated, ContactID: "c"})
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Empty(t, resp.OpportunityID)
}
