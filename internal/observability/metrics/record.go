package metrics

// ExplorerRequest records one explorer API request with its HTTP status
// (or "network_error") and duration.
func ExplorerRequest(explorer, action, status string, seconds float64) {
	if !enabled {
		return
	}
	explorerRequestsTotal.WithLabelValues(explorer, action, status).Inc()
	explorerDuration.WithLabelValues(explorer, action).Observe(seconds)
}

// Migration records one per-contract migration outcome with its duration
// and the number of status polls issued.
func Migration(status string, seconds float64, polls int) {
	if !enabled {
		return
	}
	migrationsTotal.WithLabelValues(status).Inc()
	migrationDuration.Observe(seconds)
	migrationPolls.Observe(float64(polls))
}
