package domain

// SystemStats is the aggregate usage snapshot served on the admin surface
type SystemStats struct {
	TotalUsers    int   `json:"total_users"`
	TotalRoles    int   `json:"total_roles"`
	TotalSessions int   `json:"total_sessions"`
	TotalMessages int   `json:"total_messages"`
	TotalTokens   int   `json:"total_tokens"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// HealthStatus is the liveness probe response
type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  int64  `json:"uptime_seconds"`
}
