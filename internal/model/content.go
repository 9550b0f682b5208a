package model

import "time"

// Event はブランチで開催される行事を表す。
type Event struct {
	ID          string
	BranchID    string
	Title       string
	Description string
	Location    string
	StartsAt    time.Time
	EndsAt      *time.Time
	ImageURL    string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MediaType は説教やメディアの種別を表す。
type MediaType string

const (
	MediaTypeVideo MediaType = "video"
	MediaTypeAudio MediaType = "audio"
	MediaTypeImage MediaType = "image"
)

// Sermon は説教を表す。ポッドキャストフィードから同期されたものはGUIDを持つ。
type Sermon struct {
	ID           string
	BranchID     string
	GUID         string
	Title        string
	Description  string // サニタイズ済みHTML
	Speaker      string
	SermonDate   time.Time
	MediaURL     string
	MediaType    MediaType
	ThumbnailURL string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ParsedSermon はポッドキャストフィードから取得した未保存の説教データを表す。
type ParsedSermon struct {
	GUID        string
	Title       string
	Description string // 未サニタイズ
	Speaker     string
	PublishedAt *time.Time
	MediaURL    string
	MediaType   MediaType
	ImageURL    string
}

// AnnouncementPriority はお知らせの重要度を表す。
type AnnouncementPriority string

const (
	PriorityLow    AnnouncementPriority = "low"
	PriorityMedium AnnouncementPriority = "medium"
	PriorityHigh   AnnouncementPriority = "high"
)

// Announcement はブランチのお知らせを表す。
type Announcement struct {
	ID        string
	BranchID  string
	Title     string
	Content   string
	Priority  AnnouncementPriority
	ImageURL  string
	StartsAt  time.Time
	ExpiresAt *time.Time
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Media は動画・音声・画像コンテンツを表す。音声は音楽ページにも表示される。
type Media struct {
	ID           string
	BranchID     string
	Title        string
	Description  string
	MediaURL     string
	MediaType    MediaType
	ThumbnailURL string
	DurationSec  int
	Artist       string
	Album        string
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Group は教会内の小グループを表す。
type Group struct {
	ID          string
	BranchID    string
	Name        string
	Description string
	Leader      string
	MeetingTime string
	Location    string
	ImageURL    string
	IsOpen      bool
	MaxMembers  *int
	MemberCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RadioStation はブランチが配信するラジオ局を表す。
type RadioStation struct {
	ID          string
	BranchID    string
	Name        string
	Description string
	StreamURL   string
	LogoURL     string
	IsLive      bool
	CurrentShow string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Forum はブランチの掲示板を表す。
type Forum struct {
	ID          string
	BranchID    string
	Title       string
	Description string
	Category    string
	TopicCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BlogPost はブランチのブログ記事を表す。
type BlogPost struct {
	ID          string
	BranchID    string
	Title       string
	Excerpt     string
	Content     string
	Author      string
	ImageURL    string
	Tags        []string
	PublishedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Dashboard はダッシュボードに表示するブランチの概要を表す。
type Dashboard struct {
	Branch         *Branch
	UpcomingEvents []Event
	LatestSermons  []Sermon
	Announcements  []Announcement
}
