package webhook

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"storyreel/internal/domain"
)

// Routing is the metadata a completion callback needs to find its way back
// to the right story, scene, and modality. It rides on the callback URL's
// query string, so the recovery path can reparse it from the webhook URL the
// provider has on record.
type Routing struct {
	JobID      string
	UserID     string
	StoryID    string
	SceneIndex int
	Modality   domain.Modality
}

// CallbackURL builds the completion callback for one scene task.
func CallbackURL(base string, t domain.SceneTask) string {
	q := url.Values{}
	q.Set("jobId", t.JobID)
	q.Set("userId", t.UserID)
	q.Set("storyId", t.StoryID)
	q.Set("sceneIndex", strconv.Itoa(t.SceneIndex))
	q.Set("modality", string(t.Type))
	return strings.TrimRight(base, "/") + "/webhooks/replicate?" + q.Encode()
}

// ParseRouting extracts routing metadata from callback query parameters.
func ParseRouting(q url.Values) (Routing, error) {
	r := Routing{
		JobID:    q.Get("jobId"),
		UserID:   q.Get("userId"),
		StoryID:  q.Get("storyId"),
		Modality: domain.Modality(q.Get("modality")),
	}
	if r.JobID == "" || r.StoryID == "" {
		return Routing{}, fmt.Errorf("%w: callback missing jobId or storyId", domain.ErrValidation)
	}
	if !r.Modality.IsValid() {
		return Routing{}, fmt.Errorf("%w: callback has unknown modality %q", domain.ErrValidation, q.Get("modality"))
	}
	idx, err := strconv.Atoi(q.Get("sceneIndex"))
	if err != nil || idx < 0 {
		return Routing{}, fmt.Errorf("%w: callback has invalid sceneIndex %q", domain.ErrValidation, q.Get("sceneIndex"))
	}
	r.SceneIndex = idx
	return r, nil
}

// ParseRoutingFromURL reparses routing from a recorded webhook URL.
func ParseRoutingFromURL(raw string) (Routing, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Routing{}, fmt.Errorf("%w: unparseable webhook url", domain.ErrValidation)
	}
	return ParseRouting(u.Query())
}
