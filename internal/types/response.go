package types

// Response represents a generic API response for success or error messages.
type Response struct {
	Success   bool   `json:"success" example:"false"`
	Message   string `json:"message,omitempty" example:"Operation successful"`
	Error     string `json:"error,omitempty" example:"Invalid credentials"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse describes the composite health of the service.
type HealthResponse struct {
	Status   string            `json:"status" example:"healthy"`
	Services map[string]string `json:"services"`
}
