package workflow

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/mplp/internal/errors"
)

// Definition is a named, reusable workflow shape.
type Definition struct {
	Name              string   `yaml:"name" json:"name"`
	Description       string   `yaml:"description,omitempty" json:"description,omitempty"`
	Stages            []string `yaml:"stages" json:"stages"`
	ExecutionMode     string   `yaml:"execution_mode,omitempty" json:"execution_mode,omitempty"`
	ParallelExecution bool     `yaml:"parallel_execution,omitempty" json:"parallel_execution,omitempty"`
	Priority          string   `yaml:"priority,omitempty" json:"priority,omitempty"`
}

type definitionsFile struct {
	Definitions []Definition `yaml:"definitions"`
}

func (d Definition) validate() error {
	if d.Name == "" {
		return errors.NewValidationError("definition name is required").WithField("name")
	}
	if len(d.Stages) == 0 {
		return errors.NewValidationError(fmt.Sprintf("definition %s has no stages", d.Name)).WithField("stages")
	}
	if err := validateMode(d.ExecutionMode); err != nil {
		return err
	}
	if d.Priority != "" {
		return validatePriority(d.Priority)
	}
	return nil
}

// RegisterDefinition adds or replaces a definition.
func (m *Manager) RegisterDefinition(d Definition) error {
	if err := d.validate(); err != nil {
		return err
	}
	d.Stages = append([]string(nil), d.Stages...)

	m.mu.Lock()
	m.definitions[d.Name] = d
	m.mu.Unlock()
	m.logger.Debug("workflow definition registered", "name", d.Name, "stages", d.Stages)
	return nil
}

// Definition returns the definition registered under name.
func (m *Manager) Definition(name string) (Definition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.definitions[name]
	return d, ok
}

// Definitions returns all registered definitions ordered by name.
func (m *Manager) Definitions() []Definition {
	m.mu.RLock()
	out := make([]Definition, 0, len(m.definitions))
	for _, d := range m.definitions {
		out = append(out, d)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadDefinitions registers every definition in a YAML document of the form
//
//	definitions:
//	  - name: review
//	    stages: [context, plan, confirm]
//
// Nothing is registered if any definition is invalid.
func (m *Manager) LoadDefinitions(r io.Reader) (int, error) {
	var doc definitionsFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, errors.NewValidationError("invalid definitions document").WithCause(err)
	}
	for _, d := range doc.Definitions {
		if err := d.validate(); err != nil {
			return 0, err
		}
	}
	for _, d := range doc.Definitions {
		if err := m.RegisterDefinition(d); err != nil {
			return 0, err
		}
	}
	return len(doc.Definitions), nil
}

// LoadDefinitionsFile loads definitions from path.
func (m *Manager) LoadDefinitionsFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open definitions: %w", err)
	}
	defer func() { _ = f.Close() }()
	return m.LoadDefinitions(f)
}
