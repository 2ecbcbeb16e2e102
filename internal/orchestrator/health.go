package orchestrator

// HealthStatus is the verdict for one workflow.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// ComputeHealth scores a workflow by how many of its three coordination
// facets are up: all three is healthy, two is warning, fewer is critical.
func ComputeHealth(monitoring, resources, orchestration bool) HealthStatus {
	score := 0
	for _, ok := range [...]bool{monitoring, resources, orchestration} {
		if ok {
			score++
		}
	}
	switch score {
	case 3:
		return HealthHealthy
	case 2:
		return HealthWarning
	default:
		return HealthCritical
	}
}
