package handlers

import (
	"encoding/json"
	"net/http"

	"storyreel/internal/webhook"
)

// replicateNotification mirrors the prediction fields the provider posts to
// the completion callback. Output is normalized by the media package's
// prediction type; here only the first artifact URL matters, so the payload is
// decoded loosely.
type replicateNotification struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

func (n replicateNotification) outputURL() string {
	if len(n.Output) == 0 {
		return ""
	}
	var one string
	if err := json.Unmarshal(n.Output, &one); err == nil {
		return one
	}
	var many []string
	if err := json.Unmarshal(n.Output, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return ""
}

// ReplicateWebhook accepts a provider completion notification, acks fast, and
// hands the heavy lifting to the webhook handler's pool. The provider retries
// non-2xx responses, so only routing and payload errors are rejected here.
func (a *App) ReplicateWebhook(w http.ResponseWriter, r *http.Request) {
	routing, err := webhook.ParseRouting(r.URL.Query())
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	var n replicateNotification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if n.ID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "notification missing prediction id")
		return
	}
	a.Webhooks.Submit(routing, webhook.Notification{
		PredictionID: n.ID,
		Status:       n.Status,
		OutputURL:    n.outputURL(),
		Error:        n.Error,
	})
	a.json(w, http.StatusOK, map[string]string{"status": "accepted"})
}

type recoverRequest struct {
	PredictionIDs []string `json:"predictionIds" validate:"required,min=1"`
}

type recoverResult struct {
	PredictionID string `json:"predictionId"`
	Recovered    bool   `json:"recovered"`
	Error        string `json:"error,omitempty"`
}

// RecoverWebhooks replays predictions whose completion callbacks never
// arrived. Each prediction is looked up at the provider and pushed through the
// normal notification path, so the ledger still dedupes.
func (a *App) RecoverWebhooks(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	results := make([]recoverResult, 0, len(req.PredictionIDs))
	for _, id := range req.PredictionIDs {
		res := recoverResult{PredictionID: id, Recovered: true}
		if err := a.Webhooks.Recover(r.Context(), id); err != nil {
			res.Recovered = false
			res.Error = err.Error()
			a.Log.Warn().Err(err).Str("predictionId", id).Msg("webhook recovery failed")
		}
		results = append(results, res)
	}
	a.json(w, http.StatusOK, map[string]any{"results": results})
}
