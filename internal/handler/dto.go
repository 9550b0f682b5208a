package handler

import (
	"time"

	"github.com/hitoshi/churchconnect/internal/bible"
	"github.com/hitoshi/churchconnect/internal/middleware"
	"github.com/hitoshi/churchconnect/internal/model"
)

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	BranchID  *string   `json:"branch_id"`
	Role      string    `json:"role"`
	Avatar    *string   `json:"avatar"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// branchResponse はブランチ情報のAPIレスポンス。
type branchResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Location    string    `json:"location"`
	Description *string   `json:"description"`
	Logo        *string   `json:"logo"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// authStateResponse は認証状態のAPIレスポンス。
type authStateResponse struct {
	User          *userResponse                `json:"user"`
	Branch        *branchResponse              `json:"branch"`
	Authenticated bool                         `json:"authenticated"`
	Loading       bool                         `json:"loading"`
	Outcome       string                       `json:"outcome,omitempty"`
	Notification  *middleware.NotificationBody `json:"notification,omitempty"`
}

type eventResponse struct {
	ID          string     `json:"id"`
	BranchID    string     `json:"branch_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	StartsAt    time.Time  `json:"start_date"`
	EndsAt      *time.Time `json:"end_date"`
	ImageURL    *string    `json:"image_url"`
}

type sermonResponse struct {
	ID           string    `json:"id"`
	BranchID     string    `json:"branch_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Speaker      string    `json:"speaker"`
	SermonDate   time.Time `json:"sermon_date"`
	MediaURL     *string   `json:"media_url"`
	MediaType    string    `json:"media_type"`
	ThumbnailURL *string   `json:"thumbnail_url"`
}

type announcementResponse struct {
	ID        string     `json:"id"`
	BranchID  string     `json:"branch_id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Priority  string     `json:"priority"`
	ImageURL  *string    `json:"image_url"`
	StartsAt  time.Time  `json:"start_date"`
	ExpiresAt *time.Time `json:"end_date"`
	CreatedAt time.Time  `json:"created_at"`
}

type mediaResponse struct {
	ID           string    `json:"id"`
	BranchID     string    `json:"branch_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	MediaURL     string    `json:"media_url"`
	MediaType    string    `json:"media_type"`
	ThumbnailURL *string   `json:"thumbnail_url"`
	DurationSec  int       `json:"duration"`
	Artist       string    `json:"artist,omitempty"`
	Album        string    `json:"album,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type groupResponse struct {
	ID          string  `json:"id"`
	BranchID    string  `json:"branch_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Leader      string  `json:"leader"`
	MeetingTime string  `json:"meeting_time"`
	Location    string  `json:"location"`
	ImageURL    *string `json:"image_url"`
	IsOpen      bool    `json:"is_open"`
	MaxMembers  *int    `json:"max_members"`
	MemberCount int     `json:"member_count"`
}

type radioStationResponse struct {
	ID          string  `json:"id"`
	BranchID    string  `json:"branch_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	StreamURL   string  `json:"stream_url"`
	LogoURL     *string `json:"logo_url"`
	IsLive      bool    `json:"is_live"`
	CurrentShow string  `json:"current_show"`
}

type forumResponse struct {
	ID          string    `json:"id"`
	BranchID    string    `json:"branch_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	TopicCount  int       `json:"topic_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type blogPostResponse struct {
	ID          string    `json:"id"`
	BranchID    string    `json:"branch_id"`
	Title       string    `json:"title"`
	Excerpt     string    `json:"excerpt"`
	Content     string    `json:"content"`
	Author      string    `json:"author"`
	ImageURL    *string   `json:"image_url"`
	Tags        []string  `json:"tags"`
	PublishedAt time.Time `json:"published_at"`
}

type dashboardResponse struct {
	Branch         *branchResponse        `json:"branch"`
	UpcomingEvents []eventResponse        `json:"upcoming_events"`
	LatestSermons  []sermonResponse       `json:"latest_sermons"`
	Announcements  []announcementResponse `json:"announcements"`
}

type noteResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Translation string    `json:"bible_version"`
	Book        string    `json:"book"`
	Chapter     int       `json:"chapter"`
	Verse       int       `json:"verse"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type translationResponse struct {
	Key  string `json:"key"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

type bookListResponse struct {
	TranslationID string                       `json:"translation_id"`
	Books         []bible.Book                 `json:"books"`
	Notification  *middleware.NotificationBody `json:"notification,omitempty"`
}

type verseResponse struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

type chapterResponse struct {
	TranslationID string                       `json:"translation_id"`
	BookID        string                       `json:"book_id"`
	Chapter       int                          `json:"chapter"`
	Reference     string                       `json:"reference"`
	Verses        []verseResponse              `json:"verses"`
	Notes         []noteResponse               `json:"notes"`
	Notification  *middleware.NotificationBody `json:"notification,omitempty"`
}

// optional は空文字をnullとして出力するためのヘルパー。
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toUserResponse(u *model.User) *userResponse {
	if u == nil {
		return nil
	}
	return &userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		BranchID:  optional(u.BranchID),
		Role:      string(u.Role),
		Avatar:    optional(u.Avatar),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func toBranchResponse(b *model.Branch) *branchResponse {
	if b == nil {
		return nil
	}
	return &branchResponse{
		ID:          b.ID,
		Name:        b.Name,
		Location:    b.Location,
		Description: optional(b.Description),
		Logo:        optional(b.Logo),
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func toAuthStateResponse(s model.AuthState) authStateResponse {
	return authStateResponse{
		User:          toUserResponse(s.User),
		Branch:        toBranchResponse(s.Branch),
		Authenticated: s.Authenticated,
		Loading:       s.Loading,
	}
}

func toEventResponses(events []model.Event) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			ID:          e.ID,
			BranchID:    e.BranchID,
			Title:       e.Title,
			Description: e.Description,
			Location:    e.Location,
			StartsAt:    e.StartsAt,
			EndsAt:      e.EndsAt,
			ImageURL:    optional(e.ImageURL),
		})
	}
	return out
}

func toSermonResponses(sermons []model.Sermon) []sermonResponse {
	out := make([]sermonResponse, 0, len(sermons))
	for _, s := range sermons {
		out = append(out, sermonResponse{
			ID:           s.ID,
			BranchID:     s.BranchID,
			Title:        s.Title,
			Description:  s.Description,
			Speaker:      s.Speaker,
			SermonDate:   s.SermonDate,
			MediaURL:     optional(s.MediaURL),
			MediaType:    string(s.MediaType),
			ThumbnailURL: optional(s.ThumbnailURL),
		})
	}
	return out
}

func toAnnouncementResponses(items []model.Announcement) []announcementResponse {
	out := make([]announcementResponse, 0, len(items))
	for _, a := range items {
		out = append(out, announcementResponse{
			ID:        a.ID,
			BranchID:  a.BranchID,
			Title:     a.Title,
			Content:   a.Content,
			Priority:  string(a.Priority),
			ImageURL:  optional(a.ImageURL),
			StartsAt:  a.StartsAt,
			ExpiresAt: a.ExpiresAt,
			CreatedAt: a.CreatedAt,
		})
	}
	return out
}

func toMediaResponses(items []model.Media) []mediaResponse {
	out := make([]mediaResponse, 0, len(items))
	for _, m := range items {
		out = append(out, mediaResponse{
			ID:           m.ID,
			BranchID:     m.BranchID,
			Title:        m.Title,
			Description:  m.Description,
			MediaURL:     m.MediaURL,
			MediaType:    string(m.MediaType),
			ThumbnailURL: optional(m.ThumbnailURL),
			DurationSec:  m.DurationSec,
			Artist:       m.Artist,
			Album:        m.Album,
			CreatedAt:    m.CreatedAt,
		})
	}
	return out
}

func toGroupResponses(groups []model.Group) []groupResponse {
	out := make([]groupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupResponse{
			ID:          g.ID,
			BranchID:    g.BranchID,
			Name:        g.Name,
			Description: g.Description,
			Leader:      g.Leader,
			MeetingTime: g.MeetingTime,
			Location:    g.Location,
			ImageURL:    optional(g.ImageURL),
			IsOpen:      g.IsOpen,
			MaxMembers:  g.MaxMembers,
			MemberCount: g.MemberCount,
		})
	}
	return out
}

func toRadioStationResponses(stations []model.RadioStation) []radioStationResponse {
	out := make([]radioStationResponse, 0, len(stations))
	for _, s := range stations {
		out = append(out, radioStationResponse{
			ID:          s.ID,
			BranchID:    s.BranchID,
			Name:        s.Name,
			Description: s.Description,
			StreamURL:   s.StreamURL,
			LogoURL:     optional(s.LogoURL),
			IsLive:      s.IsLive,
			CurrentShow: s.CurrentShow,
		})
	}
	return out
}

func toForumResponses(forums []model.Forum) []forumResponse {
	out := make([]forumResponse, 0, len(forums))
	for _, f := range forums {
		out = append(out, forumResponse{
			ID:          f.ID,
			BranchID:    f.BranchID,
			Title:       f.Title,
			Description: f.Description,
			Category:    f.Category,
			TopicCount:  f.TopicCount,
			UpdatedAt:   f.UpdatedAt,
		})
	}
	return out
}

func toBlogPostResponses(posts []model.BlogPost) []blogPostResponse {
	out := make([]blogPostResponse, 0, len(posts))
	for _, p := range posts {
		tags := p.Tags
		if tags == nil {
			tags = []string{}
		}
		out = append(out, blogPostResponse{
			ID:          p.ID,
			BranchID:    p.BranchID,
			Title:       p.Title,
			Excerpt:     p.Excerpt,
			Content:     p.Content,
			Author:      p.Author,
			ImageURL:    optional(p.ImageURL),
			Tags:        tags,
			PublishedAt: p.PublishedAt,
		})
	}
	return out
}

func toNoteResponse(n *model.BibleNote) noteResponse {
	return noteResponse{
		ID:          n.ID,
		UserID:      n.UserID,
		Translation: n.Translation,
		Book:        n.Book,
		Chapter:     n.Chapter,
		Verse:       n.Verse,
		Content:     n.Content,
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
	}
}

func toNoteResponses(notes []model.BibleNote) []noteResponse {
	out := make([]noteResponse, 0, len(notes))
	for i := range notes {
		out = append(out, toNoteResponse(&notes[i]))
	}
	return out
}

// toVerseResponses は節の本文に1始まりの節番号を付ける。
func toVerseResponses(verses []string) []verseResponse {
	out := make([]verseResponse, 0, len(verses))
	for i, v := range verses {
		out = append(out, verseResponse{Number: i + 1, Text: v})
	}
	return out
}
