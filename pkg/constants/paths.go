package constants

// Health/readiness endpoints, shared with deployment manifests.
const (
	PathHealth = "/health"
	PathReady  = "/ready"
)
