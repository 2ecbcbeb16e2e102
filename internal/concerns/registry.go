package concerns

import "sort"

// Defaults returned for concern names with no mapping.
const (
	UnknownCategory = "Unknown Infrastructure"
	UnknownManager  = "UnknownManager"
	UnknownLocation = "unknown"
)

// Concern names.
const (
	ConcernSecurity        = "security"
	ConcernPerformance     = "performance"
	ConcernEventBus        = "eventBus"
	ConcernErrorHandling   = "errorHandling"
	ConcernCoordination    = "coordination"
	ConcernOrchestration   = "orchestration"
	ConcernStateSync       = "stateSync"
	ConcernTransaction     = "transaction"
	ConcernProtocolVersion = "protocolVersion"
)

// Mapping describes which manager owns a cross-cutting concern.
type Mapping struct {
	Concern     string `json:"concern"`
	Manager     string `json:"manager"`
	Category    string `json:"category"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

// registry is never written after package initialization.
var registry = map[string]Mapping{
	ConcernSecurity: {
		Concern:     ConcernSecurity,
		Manager:     "SecurityManager",
		Category:    "Security Infrastructure",
		Location:    "internal/concerns/security.go",
		Description: "Authorizes cross-module operations against glob rules",
	},
	ConcernPerformance: {
		Concern:     ConcernPerformance,
		Manager:     "PerformanceManager",
		Category:    "Performance Infrastructure",
		Location:    "internal/concerns/performance.go",
		Description: "Monitors workflows and records operation metrics",
	},
	ConcernEventBus: {
		Concern:     ConcernEventBus,
		Manager:     "EventBusManager",
		Category:    "Events Infrastructure",
		Location:    "internal/concerns/eventbus.go",
		Description: "Publishes runtime events and keeps a bounded history",
	},
	ConcernErrorHandling: {
		Concern:     ConcernErrorHandling,
		Manager:     "ErrorHandlingManager",
		Category:    "Events Infrastructure",
		Location:    "internal/concerns/errorhandling.go",
		Description: "Classifies and records errors reported by runtime components",
	},
	ConcernCoordination: {
		Concern:     ConcernCoordination,
		Manager:     "CoordinationManager",
		Category:    "Coordination Infrastructure",
		Location:    "internal/concerns/coordination.go",
		Description: "Routes messages to registered module endpoints",
	},
	ConcernOrchestration: {
		Concern:     ConcernOrchestration,
		Manager:     "OrchestrationManager",
		Category:    "Coordination Infrastructure",
		Location:    "internal/concerns/orchestration.go",
		Description: "Tracks which workflows have active cross-module orchestration",
	},
	ConcernStateSync: {
		Concern:     ConcernStateSync,
		Manager:     "StateSyncManager",
		Category:    "Storage Infrastructure",
		Location:    "internal/concerns/statesync.go",
		Description: "Versioned shared state with compare-and-swap and subscriptions",
	},
	ConcernTransaction: {
		Concern:     ConcernTransaction,
		Manager:     "TransactionManager",
		Category:    "Storage Infrastructure",
		Location:    "internal/concerns/transaction.go",
		Description: "Multi-step operations with reverse-order compensation",
	},
	ConcernProtocolVersion: {
		Concern:     ConcernProtocolVersion,
		Manager:     "ProtocolVersionManager",
		Category:    "Protocol Management Infrastructure",
		Location:    "internal/concerns/protocolversion.go",
		Description: "Tracks module protocol versions and checks compatibility",
	},
}

// Lookup returns the mapping for concern.
func Lookup(concern string) (Mapping, bool) {
	m, ok := registry[concern]
	return m, ok
}

// InfrastructureCategory returns the category owning concern, or "Unknown Infrastructure".
func InfrastructureCategory(concern string) string {
	if m, ok := registry[concern]; ok {
		return m.Category
	}
	return UnknownCategory
}

// L3Manager returns the manager owning concern, or "UnknownManager".
func L3Manager(concern string) string {
	if m, ok := registry[concern]; ok {
		return m.Manager
	}
	return UnknownManager
}

// L3Location returns where the owning manager lives, or "unknown".
func L3Location(concern string) string {
	if m, ok := registry[concern]; ok {
		return m.Location
	}
	return UnknownLocation
}

// Concerns returns every mapped concern name, sorted.
func Concerns() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Mappings returns every mapping, sorted by concern name.
func Mappings() []Mapping {
	names := Concerns()
	out := make([]Mapping, 0, len(names))
	for _, name := range names {
		out = append(out, registry[name])
	}
	return out
}
