// Package pipelines maps website service types to CRM sales pipelines.
package pipelines

import (
	_ "embed"
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DefaultPipelineID is the "General Services" pipeline.
const DefaultPipelineID = "zar5aTjIKP8srIK5x0qk"

//go:embed pipelines.yaml
var builtin []byte

type document struct {
	Default   string     `yaml:"default"`
	Pipelines []pipeline `yaml:"pipelines"`
}

type pipeline struct {
	Name     string   `yaml:"name"`
	ID       string   `yaml:"id"`
	Services []string `yaml:"services"`
}

// Table is an immutable service type -> pipeline id lookup.
type Table struct {
	defaultID string
	byService map[string]string
	names     map[string]string
}

var builtinTable = sync.OnceValue(func() *Table {
	t, err := Parse(builtin)
	if err != nil {
		panic(err)
	}
	return t
})

// Builtin returns the table compiled into the binary.
func Builtin() *Table {
	return builtinTable()
}

// Load reads a table document from path.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipelines: read %s", path)
	}
	return Parse(data)
}

// Parse builds a Table from a YAML document.
func Parse(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "pipelines: parse")
	}
	if doc.Default == "" {
		return nil, eris.New("pipelines: default pipeline id is required")
	}

	t := &Table{
		defaultID: doc.Default,
		byService: make(map[string]string),
		names:     make(map[string]string),
	}
	for _, p := range doc.Pipelines {
		if p.ID == "" {
			return nil, eris.Errorf("pipelines: pipeline %q has no id", p.Name)
		}
		t.names[p.ID] = p.Name
		for _, svc := range p.Services {
			if prev, ok := t.byService[svc]; ok && prev != p.ID {
				return nil, eris.Errorf("pipelines: service %q mapped to both %s and %s", svc, prev, p.ID)
			}
			t.byService[svc] = p.ID
		}
	}
	return t, nil
}

// Resolve returns the pipeline id for serviceType, or the default id when
// the service type is unknown or empty.
func (t *Table) Resolve(serviceType string) string {
	if id, ok := t.byService[serviceType]; ok {
		return id
	}
	return t.defaultID
}

// DefaultID returns the fallback pipeline id.
func (t *Table) DefaultID() string {
	return t.defaultID
}

// Name returns the display name of a pipeline id, if known.
func (t *Table) Name(pipelineID string) string {
	return t.names[pipelineID]
}

// Services returns the number of mapped service types.
func (t *Table) Services() int {
	return len(t.byService)
}
