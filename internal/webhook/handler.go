// Package webhook serves the public lead endpoints: the form submission
// webhook, health and banner endpoints, and the browser capture script.
package webhook

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-webhook/internal/crm"
	"github.com/sells-group/lead-webhook/internal/intake"
	"github.com/sells-group/lead-webhook/internal/model"
	"github.com/sells-group/lead-webhook/internal/ratelimit"
	"github.com/sells-group/lead-webhook/internal/store"
)

const (
	maxBodyBytes  = 1 << 20
	ledgerTimeout = 5 * time.Second
	scriptName    = "lead-capture.js"

	msgInvalidBody   = "invalid request body"
	msgRateLimited   = "too many requests, try again later"
	msgInvalidForm   = "invalid form data"
	msgConfigError   = "server configuration error"
	msgCRMError      = "error processing the form, please try again"
	msgInternalError = "internal server error"

	msgCreated             = "Contact created successfully"
	msgDuplicateWithOpp    = "Contact already exists, new opportunity created"
	msgDuplicateRecorded   = "Contact already exists, form submission recorded"
	msgDuplicateUnresolved = "Duplicate contact, form submission recorded"
)

// Response statuses.
const (
	StatusSuccess              = "success"
	StatusError                = "error"
	StatusDuplicateOpportunity = "duplicate_opportunity_created"
	StatusDuplicate            = "duplicate"
	StatusDuplicateIgnored     = "duplicate_ignored"
)

//go:embed assets/lead-capture.js
var assets embed.FS

// Submitter forwards a validated lead to the CRM. *crm.Gateway implements it.
type Submitter interface {
	Submit(ctx context.Context, lead intake.Lead) (*crm.Result, error)
}

// Response is the JSON body of every webhook reply.
type Response struct {
	Success       bool     `json:"success"`
	Status        string   `json:"status"`
	Message       string   `json:"message"`
	ContactID     string   `json:"ghl_contact_id,omitempty"`
	OpportunityID string   `json:"ghl_opportunity_id,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// Config carries the process state the handler reports and enforces.
type Config struct {
	APIKeyConfigured     bool
	LocationIDConfigured bool
	// ScriptPath overrides the embedded capture script when set.
	ScriptPath string
	Version    string
}

// Handler implements the webhook endpoints.
type Handler struct {
	submitter Submitter
	limiter   ratelimit.Limiter
	ledger    store.Store
	cfg       Config
	now       func() time.Time
}

// NewHandler creates a Handler. A nil ledger discards entries.
func NewHandler(submitter Submitter, limiter ratelimit.Limiter, ledger store.Store, cfg Config) *Handler {
	if ledger == nil {
		ledger = store.Noop{}
	}
	return &Handler{
		submitter: submitter,
		limiter:   limiter,
		ledger:    ledger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Submit handles POST /webhook/submit.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entry := &model.SubmissionLog{ClientIP: clientKey(r)}
	log := zap.L().With(zap.String("client_ip", entry.ClientIP))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Warn("webhook: read body failed", zap.Error(err))
		h.reject(ctx, w, entry, http.StatusBadRequest, model.OutcomeInvalid, msgInvalidBody, nil)
		return
	}
	sub, err := model.ParseSubmission(body)
	if err != nil {
		log.Warn("webhook: unparseable body", zap.Error(err))
		h.reject(ctx, w, entry, http.StatusBadRequest, model.OutcomeInvalid, msgInvalidBody, nil)
		return
	}

	allowed, err := h.limiter.Allow(ctx, entry.ClientIP)
	if err != nil {
		log.Error("webhook: rate limiter failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Response{Status: StatusError, Message: msgInternalError})
		return
	}
	if !allowed {
		log.Warn("webhook: rate limited")
		h.reject(ctx, w, entry, http.StatusTooManyRequests, model.OutcomeRateLimited, msgRateLimited, nil)
		return
	}

	lead := intake.Extract(sub)
	entry.Email = lead.Email
	entry.ServiceType = lead.ServiceType
	log = log.With(zap.String("service_type", lead.ServiceType), zap.Int("fields", sub.Len()))

	if ok, problems := intake.Validate(lead); !ok {
		log.Info("webhook: validation failed", zap.Strings("errors", problems))
		h.reject(ctx, w, entry, http.StatusBadRequest, model.OutcomeInvalid, msgInvalidForm, problems)
		return
	}

	if !h.cfg.APIKeyConfigured || !h.cfg.LocationIDConfigured {
		log.Error("webhook: crm credentials missing",
			zap.Bool("api_key_configured", h.cfg.APIKeyConfigured),
			zap.Bool("location_id_configured", h.cfg.LocationIDConfigured),
		)
		h.reject(ctx, w, entry, http.StatusInternalServerError, model.OutcomeFailed, msgConfigError, nil)
		return
	}

	// In-flight CRM calls run to completion even if the caller disconnects.
	res, err := h.submitter.Submit(context.WithoutCancel(ctx), lead)
	if err != nil {
		log.Error("webhook: crm submission failed", zap.Error(err))
		entry.Error = err.Error()
		h.reject(ctx, w, entry, http.StatusInternalServerError, model.OutcomeFailed, msgCRMError, nil)
		return
	}

	resp := respond(res)
	entry.Outcome = res.Outcome
	entry.ContactID = res.ContactID
	entry.OpportunityID = resp.OpportunityID
	if res.Opportunity != nil && res.Opportunity.Err != nil {
		entry.Error = res.Opportunity.Err.Error()
	}
	h.record(ctx, entry)

	log.Info("webhook: submission processed",
		zap.String("outcome", string(res.Outcome)),
		zap.String("contact_id", res.ContactID),
	)
	writeJSON(w, http.StatusOK, resp)
}

// respond maps a CRM result onto the success reply.
func respond(res *crm.Result) Response {
	resp := Response{Success: true, ContactID: res.ContactID}
	if res.Opportunity.Created() {
		resp.OpportunityID = res.Opportunity.ID
	}

	switch res.Outcome {
	case model.OutcomeDuplicate:
		if res.Opportunity.Created() {
			resp.Status, resp.Message = StatusDuplicateOpportunity, msgDuplicateWithOpp
		} else {
			resp.Status, resp.Message = StatusDuplicate, msgDuplicateRecorded
		}
	case model.OutcomeDuplicateUnresolved:
		resp.Status, resp.Message = StatusDuplicateIgnored, msgDuplicateUnresolved
	default:
		resp.Status, resp.Message = StatusSuccess, msgCreated
	}
	return resp
}

func (h *Handler) reject(ctx context.Context, w http.ResponseWriter, entry *model.SubmissionLog, code int, outcome model.Outcome, msg string, problems []string) {
	entry.Outcome = outcome
	if entry.Error == "" {
		entry.Error = msg
	}
	h.record(ctx, entry)
	writeJSON(w, code, Response{Status: StatusError, Message: msg, Errors: problems})
}

// record appends to the ledger. Failures are logged only.
func (h *Handler) record(ctx context.Context, entry *model.SubmissionLog) {
	entry.CreatedAt = h.now().UTC()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()
	if err := h.ledger.RecordSubmission(ctx, entry); err != nil {
		zap.L().Warn("webhook: ledger write failed",
			zap.String("outcome", string(entry.Outcome)),
			zap.Error(err),
		)
	}
}

// Root handles GET /.
func (h *Handler) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "lead-webhook",
		"version": h.cfg.Version,
		"endpoints": []string{
			"POST /webhook/submit",
			"GET /health",
			"GET /" + scriptName,
		},
	})
}

// Health handles GET /health. It makes no outbound calls.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"config": map[string]bool{
			"api_key_configured":     h.cfg.APIKeyConfigured,
			"location_id_configured": h.cfg.LocationIDConfigured,
		},
	})
}

// Script handles GET /lead-capture.js.
func (h *Handler) Script(w http.ResponseWriter, _ *http.Request) {
	data, err := h.script()
	if err != nil {
		zap.L().Error("webhook: capture script unavailable", zap.String("path", h.cfg.ScriptPath), zap.Error(err))
		if errors.Is(err, os.ErrNotExist) {
			writeJSON(w, http.StatusNotFound, Response{Status: StatusError, Message: "script not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, Response{Status: StatusError, Message: msgInternalError})
		return
	}
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) script() ([]byte, error) {
	if h.cfg.ScriptPath != "" {
		return os.ReadFile(h.cfg.ScriptPath)
	}
	return assets.ReadFile("assets/" + scriptName)
}

// clientKey is the host part of the remote address. Proxy headers only
// reach it through the RealIP middleware.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("webhook: write response failed", zap.Error(err))
	}
}
