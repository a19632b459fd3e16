package intake

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/lead-webhook/internal/model"
)

// MaxTagLength is the longest tag the CRM accepts.
const MaxTagLength = 50

const ellipsis = "..."

type labelRule struct {
	contains string
	label    string
}

// labelRules map form keys to readable tag labels by substring of the
// lower-cased key. Order matters: the first match wins.
var labelRules = []labelRule{
	{"destination", "Destino"},
	{"origin", "Origen"},
	{"weight", "Peso"},
	{"kilo", "Kilos"},
	{"lb", "Lbs"},
	{"cargo", "Carga"},
	{"package", "PCS"},
	{"pallet", "Pallets"},
	{"pcs", "PCS"},
	{"pieces", "PCS"},
	{"company", "Empresa"},
	{"shipping", "Envío"},
	{"description", "Descripción"},
	{"goods", "Mercancía"},
	{"handling", "Handling"},
	{"special", "Especial"},
	{"hub", "Hub"},
	{"consolidation", "Consolidación"},
}

var keyCleaner = strings.NewReplacer("_", " ", "-", " ", "dmform", "Campo")

// BuildTags returns the service tag followed by one "<label>: <value>" tag
// per non-empty field, in field order.
func BuildTags(serviceType string, fields []model.Field) []string {
	tags := []string{ServiceLabel(serviceType)}
	for _, f := range fields {
		if f.IsEmpty() {
			continue
		}
		tags = append(tags, truncateTag(FieldLabel(f.Key)+": "+f.Value))
	}
	return tags
}

// ServiceLabel renders a service type for humans: global_ocean_freight
// becomes "Global Ocean Freight".
func ServiceLabel(serviceType string) string {
	return titleCase(strings.ReplaceAll(serviceType, "_", " "))
}

// FieldLabel returns the readable label for a form key.
func FieldLabel(key string) string {
	lower := strings.ToLower(key)
	for _, r := range labelRules {
		if strings.Contains(lower, r.contains) {
			return r.label
		}
	}
	return titleCase(keyCleaner.Replace(key))
}

func truncateTag(tag string) string {
	runes := []rune(tag)
	if len(runes) <= MaxTagLength {
		return tag
	}
	return string(runes[:MaxTagLength-len(ellipsis)]) + ellipsis
}

// titleCase builds a fresh Caser per call; Casers are not safe for
// concurrent use.
func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}
