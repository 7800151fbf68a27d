package routes

const (
	// Health
	Health = "/health"

	// Metrics
	Metrics = "/metrics"

	// Auth
	PhoneVerification = "/auth/v1/phone/verification"
	TokenRefresh      = "/auth/v1/token/refresh"
)
