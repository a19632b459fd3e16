// Package crm forwards leads into GoHighLevel: one contact write, duplicate
// recovery, then a best-effort opportunity in the service's pipeline.
package crm

import (
	"context"
	"time"
	_ "time/tzdata" // America/New_York must resolve without host zoneinfo

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-webhook/internal/intake"
	"github.com/sells-group/lead-webhook/internal/model"
	"github.com/sells-group/lead-webhook/internal/pipelines"
	"github.com/sells-group/lead-webhook/pkg/ghl"
)

const (
	// DefaultContactSource is the contact "source" shown in the CRM.
	DefaultContactSource = "Website - jetcargo.us"
	// DefaultOpportunitySource is the opportunity "source" shown in the CRM.
	DefaultOpportunitySource = "Website Form"

	opportunityStatus = "open"
	titleTimeLayout   = "2006-01-02 15:04"
	titleTimeZone     = "America/New_York"
	suffixLength      = 8
)

// DuplicateStrategy selects how the existing contact id is recovered after a
// duplicate-contact rejection.
type DuplicateStrategy string

const (
	// DuplicateFromMeta reads meta.contactId from the rejection body.
	DuplicateFromMeta DuplicateStrategy = "meta"
	// DuplicateBySearch looks the contact up by email.
	DuplicateBySearch DuplicateStrategy = "search"
)

// ParseDuplicateStrategy validates a configured strategy name. Empty means
// DuplicateFromMeta.
func ParseDuplicateStrategy(s string) (DuplicateStrategy, error) {
	switch DuplicateStrategy(s) {
	case "", DuplicateFromMeta:
		return DuplicateFromMeta, nil
	case DuplicateBySearch:
		return DuplicateBySearch, nil
	}
	return "", eris.Errorf("crm: unknown duplicate strategy %q", s)
}

// Config controls how records are shaped.
type Config struct {
	ContactSource     string
	OpportunitySource string
	Duplicates        DuplicateStrategy
}

// OpportunityOutcome reports the best-effort opportunity write.
type OpportunityOutcome struct {
	ID         string
	Title      string
	PipelineID string
	Err        error
}

// Created reports whether the opportunity was written.
func (o *OpportunityOutcome) Created() bool {
	return o != nil && o.Err == nil
}

// Result is the terminal state of a successful or recovered submission.
// Opportunity is nil when no opportunity was attempted.
type Result struct {
	Outcome     model.Outcome
	ContactID   string
	Opportunity *OpportunityOutcome
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithClock overrides time.Now for opportunity titles.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// WithIDGenerator overrides the source of title suffixes.
func WithIDGenerator(fn func() string) Option {
	return func(g *Gateway) {
		g.newID = fn
	}
}

// Gateway owns the CRM write path for one location.
type Gateway struct {
	client    ghl.Client
	pipelines *pipelines.Table
	cfg       Config
	loc       *time.Location
	now       func() time.Time
	newID     func() string
}

// New creates a Gateway. A nil table uses the built-in pipeline table.
func New(client ghl.Client, table *pipelines.Table, cfg Config, opts ...Option) (*Gateway, error) {
	loc, err := time.LoadLocation(titleTimeZone)
	if err != nil {
		return nil, eris.Wrap(err, "crm: load title time zone")
	}
	if table == nil {
		table = pipelines.Builtin()
	}
	if cfg.ContactSource == "" {
		cfg.ContactSource = DefaultContactSource
	}
	if cfg.OpportunitySource == "" {
		cfg.OpportunitySource = DefaultOpportunitySource
	}
	if cfg.Duplicates == "" {
		cfg.Duplicates = DuplicateFromMeta
	}

	g := &Gateway{
		client:    client,
		pipelines: table,
		cfg:       cfg,
		loc:       loc,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Submit creates the contact and its opportunity. A duplicate-contact
// rejection is not an error: the existing contact gets the opportunity
// instead. Any other CRM failure is returned.
func (g *Gateway) Submit(ctx context.Context, lead intake.Lead) (*Result, error) {
	log := zap.L().With(zap.String("service_type", lead.ServiceType))

	resp, err := g.client.CreateContact(ctx, g.contactRequest(lead))
	if err != nil {
		apiErr, ok := ghl.AsAPIError(err)
		if !ok || !apiErr.IsDuplicate() {
			return nil, eris.Wrap(err, "crm: create contact")
		}
		return g.recoverDuplicate(ctx, lead, apiErr), nil
	}

	contactID := resp.Contact.ID
	log.Info("crm: contact created", zap.String("contact_id", contactID))

	res := &Result{Outcome: model.OutcomeCreated, ContactID: contactID}
	if contactID == "" {
		log.Warn("crm: contact response carried no id, skipping opportunity")
		return res, nil
	}
	res.Opportunity = g.CreateOpportunity(ctx, contactID, lead)
	return res, nil
}

func (g *Gateway) recoverDuplicate(ctx context.Context, lead intake.Lead, apiErr *ghl.APIError) *Result {
	log := zap.L().With(
		zap.String("service_type", lead.ServiceType),
		zap.String("strategy", string(g.cfg.Duplicates)),
	)
	log.Info("crm: duplicate contact, recovering existing id")

	contactID := g.existingContactID(ctx, lead, apiErr)
	if contactID == "" {
		log.Warn("crm: duplicate contact id could not be resolved")
		return &Result{Outcome: model.OutcomeDuplicateUnresolved}
	}

	log.Info("crm: existing contact found", zap.String("contact_id", contactID))
	return &Result{
		Outcome:     model.OutcomeDuplicate,
		ContactID:   contactID,
		Opportunity: g.CreateOpportunity(ctx, contactID, lead),
	}
}

func (g *Gateway) existingContactID(ctx context.Context, lead intake.Lead, apiErr *ghl.APIError) string {
	switch g.cfg.Duplicates {
	case DuplicateBySearch:
		if lead.Email == "" {
			return ""
		}
		contacts, err := g.client.SearchContactsByEmail(ctx, lead.Email)
		if err != nil {
			zap.L().Warn("crm: duplicate search failed", zap.Error(err))
			return ""
		}
		if len(contacts) == 0 {
			return ""
		}
		return contacts[0].ID
	default:
		return apiErr.DuplicateContactID()
	}
}

// CreateOpportunity writes one opportunity for contactID. Failures are
// logged and reported in the outcome, never returned.
func (g *Gateway) CreateOpportunity(ctx context.Context, contactID string, lead intake.Lead) *OpportunityOutcome {
	out := &OpportunityOutcome{
		Title:      g.OpportunityTitle(lead),
		PipelineID: g.pipelines.Resolve(lead.ServiceType),
	}
	log := zap.L().With(
		zap.String("contact_id", contactID),
		zap.String("pipeline_id", out.PipelineID),
		zap.String("pipeline", g.pipelines.Name(out.PipelineID)),
	)

	resp, err := g.client.CreateOpportunity(ctx, ghl.OpportunityRequest{
		Name:          out.Title,
		PipelineID:    out.PipelineID,
		ContactID:     contactID,
		Status:        opportunityStatus,
		Source:        g.cfg.OpportunitySource,
		MonetaryValue: 0,
	})
	if err != nil {
		out.Err = eris.Wrap(err, "crm: create opportunity")
		log.Error("crm: opportunity not created", zap.Error(err))
		return out
	}

	out.ID = resp.Opportunity.ID
	log.Info("crm: opportunity created", zap.String("opportunity_id", out.ID))
	return out
}

// OpportunityTitle builds "<Service> - <name> - <time>", or
// "<Service> - <time> #<id>" when the lead has no name.
func (g *Gateway) OpportunityTitle(lead intake.Lead) string {
	service := intake.ServiceLabel(lead.ServiceType)
	stamp := g.now().In(g.loc).Format(titleTimeLayout)
	if lead.Name != "" {
		return service + " - " + lead.Name + " - " + stamp
	}
	suffix := g.newID()
	if len(suffix) > suffixLength {
		suffix = suffix[:suffixLength]
	}
	return service + " - " + stamp + " #" + suffix
}

func (g *Gateway) contactRequest(lead intake.Lead) ghl.ContactRequest {
	return ghl.ContactRequest{
		Source:    g.cfg.ContactSource,
		Email:     lead.Email,
		FirstName: lead.FirstName,
		LastName:  lead.LastName,
		Phone:     lead.Phone,
		Tags:      lead.Tags,
		CustomFields: []ghl.CustomField{
			{Key: "service_type", FieldValue: lead.ServiceType},
		},
	}
}
