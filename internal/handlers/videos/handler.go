package videos

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"gitlab.com/vidfleet.net/internal/core/ports/primary"
	"gitlab.com/vidfleet.net/internal/core/ports/secondary"
	"gitlab.com/vidfleet.net/internal/handlers"
)

// ApiHandler streams source video files to workers
type ApiHandler struct {
	videoRepo secondary.VideoRepository
	mediaRoot string
	logger    primary.Logger
}

func NewHandler(videoRepo secondary.VideoRepository, mediaRoot string, logger primary.Logger) *ApiHandler {
	return &ApiHandler{
		videoRepo: videoRepo,
		mediaRoot: mediaRoot,
		logger:    logger,
	}
}

func (api *ApiHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/videos/{videoId}/download", api.Download).Methods("GET")
}

// Download streams the stored file for a video. ServeFile handles range
// requests, which workers use to resume large pulls.
func (api *ApiHandler) Download(w http.ResponseWriter, r *http.Request) {
	videoID := mux.Vars(r)["videoId"]

	video, err := api.videoRepo.GetVideo(r.Context(), videoID)
	if err != nil {
		api.logger.Error("Failed to get video", "videoId", videoID, "error", err)
		handlers.ResponseError(w, "Failed to get video", http.StatusInternalServerError)
		return
	}
	if video == nil || video.FilePath == "" {
		handlers.ResponseError(w, "Video not found", http.StatusNotFound)
		return
	}

	path := video.FilePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(api.mediaRoot, path)
	}
	// The stored path must stay under the media root; reject anything that
	// escapes after cleaning.
	resolved, err := filepath.Abs(path)
	if err != nil || !withinRoot(resolved, api.mediaRoot) {
		api.logger.Error("Video file path escapes media root", "videoId", videoID, "path", video.FilePath)
		handlers.ResponseError(w, "Video not found", http.StatusNotFound)
		return
	}

	if _, err := os.Stat(resolved); err != nil {
		api.logger.Error("Video file missing on disk", "videoId", videoID, "path", resolved)
		handlers.ResponseError(w, "Video file not available", http.StatusNotFound)
		return
	}

	http.ServeFile(w, r, resolved)
}

func withinRoot(path, root string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
