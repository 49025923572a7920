package routing

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nulzo/content-orchestrator/internal/llm"
)

//go:embed routes.yaml
var defaultTableYAML []byte

// Table is the compiled-in configuration used when the store is unavailable.
type Table struct {
	Routes    []TaskRoute      `yaml:"routes"`
	Providers []llm.Descriptor `yaml:"providers"`
}

var (
	defaultTable     *Table
	defaultTableOnce sync.Once
)

// DefaultTable returns the embedded table. It panics if the embedded
// document is malformed, which is a build defect.
func DefaultTable() *Table {
	defaultTableOnce.Do(func() {
		t, err := ParseTable(defaultTableYAML)
		if err != nil {
			panic(fmt.Sprintf("routing: embedded table: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// LoadTable reads a table from a YAML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routing table: %w", err)
	}
	return ParseTable(data)
}

func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse routing table: %w", err)
	}
	for i, r := range t.Routes {
		if r.Task == "" || r.PreferredProvider == "" {
			return nil, fmt.Errorf("route %d: task and preferred_provider are required", i)
		}
		t.Routes[i] = r.withDefaults()
	}
	for i, d := range t.Providers {
		if d.Name == "" || d.DefaultModel == "" {
			return nil, fmt.Errorf("provider %d: name and default_model are required", i)
		}
	}
	return &t, nil
}

// Route looks a task up in the table.
func (t *Table) Route(task string) (TaskRoute, bool) {
	for _, r := range t.Routes {
		if r.Task == task {
			return r, true
		}
	}
	return TaskRoute{}, false
}
