package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"storyreel/internal/domain"
	"storyreel/internal/storage"
	"storyreel/pkg/zip"
)

// StoryArchive streams a ready story's generated assets as one zip download.
// Assets that cannot be read back are skipped rather than failing the whole
// archive, since a story with a per-scene generation error is still ready.
func (a *App) StoryArchive(w http.ResponseWriter, r *http.Request) {
	userID := a.userID(r, r.URL.Query().Get("userId"))
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	storyID := chi.URLParam(r, "id")
	if storyID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "story id required")
		return
	}
	story, err := a.Stories.GetByID(r.Context(), storyID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "story not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load story")
		return
	}
	if story.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "story not found")
		return
	}
	if story.Status != domain.StoryStatusReady {
		a.error(w, http.StatusConflict, "conflict", "story is not ready")
		return
	}

	var assets []zip.Asset
	for _, s := range story.Scenes {
		if s.ImageURL != "" {
			assets = a.appendAsset(r, assets, storyID, s.Index, "image", "png", "image/png")
		}
		if s.VideoURL != "" {
			assets = a.appendAsset(r, assets, storyID, s.Index, "video", "mp4", "video/mp4")
		}
		if s.AudioURL != "" {
			assets = a.appendAsset(r, assets, storyID, s.Index, "audio", "mp3", "audio/mpeg")
		}
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "story has no stored assets")
		return
	}

	archive := zip.ArchiveAssets(assets)
	if archive == nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "story-"+storyID+".zip"))
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func (a *App) appendAsset(r *http.Request, assets []zip.Asset, storyID string, sceneIndex int, modality, ext, mime string) []zip.Asset {
	key := storage.SceneKey(storyID, sceneIndex, modality, ext)
	data, err := a.Blobs.Get(r.Context(), key)
	if err != nil {
		a.Log.Warn().Err(err).Str("key", key).Msg("archive asset unavailable")
		return assets
	}
	return append(assets, zip.Asset{
		Filename: fmt.Sprintf("scene-%d-%s.%s", sceneIndex, modality, ext),
		MIME:     mime,
		Data:     data,
	})
}
