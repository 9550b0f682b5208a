package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/churchconnect/internal/middleware"
	"github.com/hitoshi/churchconnect/internal/model"
)

// ContentServiceInterface はコンテンツハンドラーが必要とするサービスインターフェース。
// content.Serviceが実装する。
type ContentServiceInterface interface {
	Events(ctx context.Context, branchID string, limit int) ([]model.Event, error)
	Sermons(ctx context.Context, branchID string, limit int) ([]model.Sermon, error)
	Announcements(ctx context.Context, branchID string, limit int) ([]model.Announcement, error)
	Media(ctx context.Context, branchID string, mediaType model.MediaType, limit int) ([]model.Media, error)
	Music(ctx context.Context, branchID string, limit int) ([]model.Media, error)
	Groups(ctx context.Context, branchID string) ([]model.Group, error)
	RadioStations(ctx context.Context, branchID string) ([]model.RadioStation, error)
	Forums(ctx context.Context, branchID string) ([]model.Forum, error)
	BlogPosts(ctx context.Context, branchID string, limit int) ([]model.BlogPost, error)
	Dashboard(ctx context.Context, branch *model.Branch) (*model.Dashboard, error)
}

// ContentHandler は所属ブランチの読み取り専用コンテンツのHTTPハンドラー。
type ContentHandler struct {
	service ContentServiceInterface
}

// NewContentHandler はContentHandlerを生成する。
func NewContentHandler(service ContentServiceInterface) *ContentHandler {
	return &ContentHandler{service: service}
}

// currentBranch は認証状態から所属ブランチを取り出す。
// ブランチ情報が未取得の場合はプロフィールのブランチIDだけを持つBranchを返す。
func currentBranch(r *http.Request) *model.Branch {
	state, ok := middleware.AuthStateFromContext(r.Context())
	if !ok {
		return nil
	}
	if state.Branch != nil {
		return state.Branch
	}
	if state.User != nil && state.User.BranchID != "" {
		return &model.Branch{ID: state.User.BranchID}
	}
	return nil
}

func currentBranchID(r *http.Request) string {
	if b := currentBranch(r); b != nil {
		return b.ID
	}
	return ""
}

// Dashboard はダッシュボードの概要を返す。
// GET /api/dashboard
func (h *ContentHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Dashboard(r.Context(), currentBranch(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboardResponse{
		Branch:         toBranchResponse(d.Branch),
		UpcomingEvents: toEventResponses(d.UpcomingEvents),
		LatestSermons:  toSermonResponses(d.LatestSermons),
		Announcements:  toAnnouncementResponses(d.Announcements),
	})
}

// Events は今後の行事を返す。
// GET /api/events?limit=N
func (h *ContentHandler) Events(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.Events(r.Context(), currentBranchID(r), queryInt(r, "limit"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": toEventResponses(events)})
}

// Sermons は説教を新しい順で返す。
// GET /api/sermons?limit=N
func (h *ContentHandler) Sermons(w http.ResponseWriter, r *http.Request) {
	sermons, err := h.service.Sermons(r.Context(), currentBranchID(r), queryInt(r, "limit"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sermons": toSermonResponses(sermons)})
}

// Announcements は掲載中のお知らせを返す。
// GET /api/announcements?limit=N
func (h *ContentHandler) Announcements(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Announcements(r.Context(), currentBranchID(r), queryInt(r, "limit"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"announcements": toAnnouncementResponses(items)})
}

// Media はメディアを返す。typeを指定すると種別で絞り込む。
// GET /api/media?type=video|audio|image&limit=N
func (h *ContentHandler) Media(w http.ResponseWriter, r *http.Request) {
	mediaType := model.MediaType(r.URL.Query().Get("type"))
	switch mediaType {
	case "", model.MediaTypeVideo, model.MediaTypeAudio, model.MediaTypeImage:
	default:
		handleServiceError(w, model.NewValidationError("typeにはvideo、audio、imageのいずれかを指定してください。"))
		return
	}

	items, err := h.service.Media(r.Context(), currentBranchID(r), mediaType, queryInt(r, "limit"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"media": toMediaResponses(items)})
}

// Music は音声メディアを返す。
// GET /api/music?limit=N
func (h *ContentHandler) Music(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Music(r.Context(), currentBranchID(r), queryInt(r, "limit"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"music": toMediaResponses(items)})
}

// Groups は小グループを返す。
// GET /api/groups
func (h *ContentHandler) Groups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.Groups(r.Context(), currentBranchID(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": toGroupResponses(groups)})
}

// Radio はラジオ局を返す。
// GET /api/radio
func (h *ContentHandler) Radio(w http.ResponseWriter, r *http.Request) {
	stations, err := h.service.RadioStations(r.Context(), currentBranchID(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stations": toRadioStationResponses(stations)})
}

// Forums は掲示板を返す。
// GET /api/forums
func (h *ContentHandler) Forums(w http.ResponseWriter, r *http.Request) {
	forums, err := h.service.Forums(r.Context(), currentBranchID(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"forums": toForumResponses(forums)})
}

// Blog は公開済みのブログ記事を返す。
// GET /api/blog?limit=N
func (h *ContentHandler) Blog(w http.ResponseWriter, r *http.Request) {
	posts, err := h.service.BlogPosts(r.Context(), currentBranchID(r), queryInt(r, "limit"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": toBlogPostResponses(posts)})
}
