package server

import "github.com/matzehuels/spotmatch/pkg/design"

// OrdersResponse is the JSON shape returned by GET /api/v1/orders.
type OrdersResponse struct {
	Planes []design.Plane `json:"planes"`
}

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Code      string `json:"code"`
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse is the JSON shape returned by GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Busy    bool   `json:"busy"`
	Version string `json:"version"`
}
