package concerns

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/mplp/internal/errors"
	"github.com/Iron-Ham/mplp/internal/logging"
)

// Rule allows or denies operations whose source, target and operation match
// the glob patterns. An empty pattern matches anything.
type Rule struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Operation string `json:"operation"`
	Allow     bool   `json:"allow"`
}

type compiledRule struct {
	rule                  Rule
	source, target, opPat glob.Glob
}

func (r compiledRule) matches(source, target, operation string) bool {
	return (r.source == nil || r.source.Match(source)) &&
		(r.target == nil || r.target.Match(target)) &&
		(r.opPat == nil || r.opPat.Match(operation))
}

func compilePattern(p string) (glob.Glob, error) {
	if p == "" || p == "*" {
		return nil, nil
	}
	return glob.Compile(p)
}

func compileRule(r Rule) (compiledRule, error) {
	var (
		cr  = compiledRule{rule: r}
		err error
	)
	if cr.source, err = compilePattern(r.Source); err != nil {
		return cr, fmt.Errorf("source pattern %q: %w", r.Source, err)
	}
	if cr.target, err = compilePattern(r.Target); err != nil {
		return cr, fmt.Errorf("target pattern %q: %w", r.Target, err)
	}
	if cr.opPat, err = compilePattern(r.Operation); err != nil {
		return cr, fmt.Errorf("operation pattern %q: %w", r.Operation, err)
	}
	return cr, nil
}

// SecurityStats summarizes authorization decisions.
type SecurityStats struct {
	Rules        int   `json:"rules"`
	DefaultAllow bool  `json:"default_allow"`
	Allowed      int64 `json:"allowed"`
	Denied       int64 `json:"denied"`
}

// SecurityManager authorizes cross-module operations. Rules are evaluated in
// order and the first match decides; with no match the default applies.
type SecurityManager struct {
	mu           sync.RWMutex
	rules        []compiledRule
	defaultAllow bool

	allowed atomic.Int64
	denied  atomic.Int64

	logger *logging.Logger
}

// NewSecurityManager creates a SecurityManager with no rules.
func NewSecurityManager(defaultAllow bool, logger *logging.Logger) *SecurityManager {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &SecurityManager{
		defaultAllow: defaultAllow,
		logger:       logger.WithComponent("security"),
	}
}

// SetRules replaces all rules. Nothing changes if any pattern fails to compile.
func (s *SecurityManager) SetRules(rules []Rule) error {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		cr, err := compileRule(r)
		if err != nil {
			return errors.NewValidationError(fmt.Sprintf("rule %d", i)).WithField("security.rules").WithCause(err)
		}
		compiled = append(compiled, cr)
	}

	s.mu.Lock()
	s.rules = compiled
	s.mu.Unlock()
	return nil
}

// AddRule appends a rule after the existing ones.
func (s *SecurityManager) AddRule(r Rule) error {
	cr, err := compileRule(r)
	if err != nil {
		return errors.NewValidationError("invalid rule").WithField("security.rules").WithCause(err)
	}
	s.mu.Lock()
	s.rules = append(s.rules, cr)
	s.mu.Unlock()
	return nil
}

// SetDefaultAllow sets the decision used when no rule matches.
func (s *SecurityManager) SetDefaultAllow(allow bool) {
	s.mu.Lock()
	s.defaultAllow = allow
	s.mu.Unlock()
}

// Rules returns the configured rules in evaluation order.
func (s *SecurityManager) Rules() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.rule
	}
	return out
}

// Authorize returns nil if source may perform operation on target, otherwise
// a CoordinationError wrapping errors.ErrAccessDenied.
func (s *SecurityManager) Authorize(source, target, operation string) error {
	s.mu.RLock()
	allow := s.defaultAllow
	for _, r := range s.rules {
		if r.matches(source, target, operation) {
			allow = r.rule.Allow
			break
		}
	}
	s.mu.RUnlock()

	if allow {
		s.allowed.Add(1)
		return nil
	}

	s.denied.Add(1)
	s.logger.Warn("operation denied", "source", source, "target", target, "operation", operation)
	return errors.NewCoordinationError("operation not permitted", errors.ErrAccessDenied).
		WithRoute(source, target).
		WithOperation(operation).
		WithSeverity(errors.SeverityWarning)
}

// Stats returns authorization counters.
func (s *SecurityManager) Stats() SecurityStats {
	s.mu.RLock()
	n, allow := len(s.rules), s.defaultAllow
	s.mu.RUnlock()
	return SecurityStats{
		Rules:        n,
		DefaultAllow: allow,
		Allowed:      s.allowed.Load(),
		Denied:       s.denied.Load(),
	}
}
