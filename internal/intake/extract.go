// Package intake turns raw website form submissions into CRM-ready leads:
// field extraction, tag generation and validation.
package intake

import (
	"strings"

	"github.com/sells-group/lead-webhook/internal/model"
)

// DefaultServiceType is used when a submission carries no service_type.
const DefaultServiceType = "general_contact"

// UnknownName is the first name sent to the CRM when no name was found.
const UnknownName = "Unknown"

// NestedFieldsKey holds extra form fields posted as a nested object.
const NestedFieldsKey = "all_fields"

// reservedKeys never become tags. The page metadata keys are added by the
// browser capture script.
var reservedKeys = map[string]bool{
	"email":         true,
	"name":          true,
	"phone":         true,
	"service_type":  true,
	NestedFieldsKey: true,
	"page_url":      true,
	"page_title":    true,
	"timestamp":     true,
	"user_agent":    true,
	"referrer":      true,
}

// nameFieldRules match generic form-builder keys that carry the contact name.
// Evaluated in order against keys in submission order; first match wins.
var nameFieldRules = []func(key string) bool{
	func(key string) bool { return strings.HasPrefix(key, "dmform-0") },
}

// Lead is the normalized view of one submission.
type Lead struct {
	// Name is the name as submitted; empty when none was found.
	Name        string
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	ServiceType string
	// Extra holds the non-reserved fields in submission order, with nested
	// all_fields entries merged in.
	Extra []model.Field
	Tags  []string
}

// Extract normalizes a submission into a Lead and builds its tags.
func Extract(s *model.Submission) Lead {
	lead := Lead{
		Name:        extractName(s),
		Email:       s.String("email"),
		Phone:       s.String("phone"),
		ServiceType: s.String("service_type"),
	}
	if lead.ServiceType == "" {
		lead.ServiceType = DefaultServiceType
	}
	lead.FirstName, lead.LastName = SplitName(lead.Name)
	lead.Extra = leftoverFields(s)
	lead.Tags = BuildTags(lead.ServiceType, lead.Extra)
	return lead
}

// SplitName splits a full name on whitespace into first name and the rest.
func SplitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return UnknownName, ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func extractName(s *model.Submission) string {
	if name := s.String("name"); name != "" {
		return name
	}
	for _, f := range s.Fields() {
		for _, match := range nameFieldRules {
			if match(f.Key) {
				if f.IsEmpty() {
					return ""
				}
				return f.Value
			}
		}
	}
	return ""
}

func leftoverFields(s *model.Submission) []model.Field {
	merged := model.NewSubmission(s.Fields())
	if f, ok := s.Get(NestedFieldsKey); ok {
		if nested, ok := f.Object(); ok {
			for _, nf := range nested {
				merged.Set(nf)
			}
		}
	}

	var out []model.Field
	for _, f := range merged.Fields() {
		if reservedKeys[f.Key] {
			continue
		}
		out = append(out, f)
	}
	return out
}
