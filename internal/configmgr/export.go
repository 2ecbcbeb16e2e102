package configmgr

import (
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/mplp/internal/errors"
)

type exportDocument struct {
	Values []Value `yaml:"values"`
}

// ExportYAML writes the current value of every key. Encrypted values are
// written as ciphertext.
func (m *Manager) ExportYAML(w io.Writer) error {
	m.mu.Lock()
	doc := exportDocument{Values: make([]Value, 0, len(m.current))}
	for _, v := range m.current {
		doc.Values = append(doc.Values, v)
	}
	m.mu.Unlock()
	sortValues(doc.Values)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode config export: %w", err)
	}
	return enc.Close()
}

// ImportYAML sets every value in an export document as a new version of its
// key and returns how many were imported. Encrypted values must have been
// sealed with this manager's key; nothing is imported if any fails to open.
func (m *Manager) ImportYAML(r io.Reader) (int, error) {
	var doc exportDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, errors.NewValidationError("invalid config export").WithCause(err)
	}

	for _, v := range doc.Values {
		if v.Key == "" {
			return 0, errors.NewValidationError("config export entry without key").WithField("key")
		}
		if v.Encrypted {
			if _, err := m.sealer.open(v.Key, v.Value); err != nil {
				return 0, errors.NewValidationError("cannot decrypt imported value").WithField(v.Key).WithCause(err)
			}
		}
	}

	for i, v := range doc.Values {
		if _, err := m.write(v.Key, v.Value, v.Encrypted, 0); err != nil {
			return i, err
		}
	}
	m.logger.Info("config imported", "values", len(doc.Values))
	return len(doc.Values), nil
}

func sortValues(vals []Value) {
	sort.Slice(vals, func(i, j int) bool { return vals[i].Key < vals[j].Key })
}
