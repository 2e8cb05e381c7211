package handlers

import (
	"net/http"

	"storyreel/internal/telemetry"
)

// Usage24h summarizes the last day of generation activity per modality.
func (a *App) Usage24h(w http.ResponseWriter, r *http.Request) {
	usage, err := a.Usage.UsageLast24h(r.Context())
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to aggregate usage")
		return
	}
	if usage == nil {
		usage = []telemetry.ModalityUsage{}
	}
	a.json(w, http.StatusOK, map[string]any{"window": "24h", "usage": usage})
}
