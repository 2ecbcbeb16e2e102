package concerns

import (
	"fmt"
	"sync"

	"golang.org/x/mod/semver"

	"github.com/Iron-Ham/mplp/internal/errors"
)

// ProtocolVersionManager records the protocol version each module speaks and
// checks it against the runtime version.
type ProtocolVersionManager struct {
	runtime string

	mu      sync.RWMutex
	modules map[string]string
}

// NewProtocolVersionManager creates a manager for a runtime speaking version
// (for example "v1.0.0").
func NewProtocolVersionManager(version string) *ProtocolVersionManager {
	return &ProtocolVersionManager{
		runtime: version,
		modules: make(map[string]string),
	}
}

// RuntimeVersion returns the runtime protocol version.
func (p *ProtocolVersionManager) RuntimeVersion() string { return p.runtime }

// Compatible reports whether a module speaking version can run on this
// runtime: same major version and a minor version no newer than the runtime's.
func (p *ProtocolVersionManager) Compatible(version string) bool {
	if !semver.IsValid(version) || !semver.IsValid(p.runtime) {
		return false
	}
	if semver.Major(version) != semver.Major(p.runtime) {
		return false
	}
	return semver.Compare(semver.MajorMinor(version), semver.MajorMinor(p.runtime)) <= 0
}

// Register records module's version after checking compatibility.
func (p *ProtocolVersionManager) Register(module, version string) error {
	if !semver.IsValid(version) {
		return errors.NewValidationError("invalid protocol version").
			WithField(module).
			WithValue(version)
	}
	if !p.Compatible(version) {
		return fmt.Errorf("module %s speaks %s, runtime speaks %s: %w",
			module, version, p.runtime, errors.ErrProtocolIncompatible)
	}
	p.mu.Lock()
	p.modules[module] = version
	p.mu.Unlock()
	return nil
}

// Version returns the version registered for module.
func (p *ProtocolVersionManager) Version(module string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.modules[module]
	return v, ok
}

// Versions returns a copy of all registered versions.
func (p *ProtocolVersionManager) Versions() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.modules))
	for k, v := range p.modules {
		out[k] = v
	}
	return out
}
