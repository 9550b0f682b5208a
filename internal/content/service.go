// Package content はブランチ単位の読み取り専用コンテンツ（行事・説教・メディアなど）の参照を提供する。
package content

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/churchconnect/internal/model"
	"github.com/hitoshi/churchconnect/internal/repository"
)

// 一覧の既定件数と上限。
const (
	DefaultLimit = 50
	MaxLimit     = 200

	dashboardEvents        = 3
	dashboardSermons       = 3
	dashboardAnnouncements = 5
)

// Service はコンテンツ参照のサービス層。
// ブランチ未所属のユーザーには空の一覧を返す。
type Service struct {
	repo repository.ContentRepository
	now  func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.ContentRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// NormalizeLimit は件数指定を既定値と上限の範囲に収める。
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Events は今後の行事を開始日時の順で返す。
func (s *Service) Events(ctx context.Context, branchID string, limit int) ([]model.Event, error) {
	if branchID == "" {
		return []model.Event{}, nil
	}
	events, err := s.repo.ListEvents(ctx, branchID, s.now(), NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("行事の取得に失敗しました: %w", err)
	}
	return nonNil(events), nil
}

// Sermons は説教を新しい順で返す。
func (s *Service) Sermons(ctx context.Context, branchID string, limit int) ([]model.Sermon, error) {
	if branchID == "" {
		return []model.Sermon{}, nil
	}
	sermons, err := s.repo.ListSermons(ctx, branchID, NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("説教の取得に失敗しました: %w", err)
	}
	return nonNil(sermons), nil
}

// Announcements は掲載中のお知らせを重要度の高い順で返す。
func (s *Service) Announcements(ctx context.Context, branchID string, limit int) ([]model.Announcement, error) {
	if branchID == "" {
		return []model.Announcement{}, nil
	}
	items, err := s.repo.ListAnnouncements(ctx, branchID, s.now(), NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("お知らせの取得に失敗しました: %w", err)
	}
	return nonNil(items), nil
}

// Media はメディアを返す。mediaTypeが空の場合は全種別を返す。
func (s *Service) Media(ctx context.Context, branchID string, mediaType model.MediaType, limit int) ([]model.Media, error) {
	switch mediaType {
	case "", model.MediaTypeVideo, model.MediaTypeAudio, model.MediaTypeImage:
	default:
		return nil, model.NewValidationError(fmt.Sprintf("未対応のメディア種別です: %s", mediaType))
	}
	if branchID == "" {
		return []model.Media{}, nil
	}
	items, err := s.repo.ListMedia(ctx, branchID, mediaType, NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("メディアの取得に失敗しました: %w", err)
	}
	return nonNil(items), nil
}

// Music は音楽ページ向けに音声メディアのみを返す。
func (s *Service) Music(ctx context.Context, branchID string, limit int) ([]model.Media, error) {
	return s.Media(ctx, branchID, model.MediaTypeAudio, limit)
}

// Groups は小グループを返す。
func (s *Service) Groups(ctx context.Context, branchID string) ([]model.Group, error) {
	if branchID == "" {
		return []model.Group{}, nil
	}
	groups, err := s.repo.ListGroups(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("小グループの取得に失敗しました: %w", err)
	}
	return nonNil(groups), nil
}

// RadioStations はラジオ局を返す。
func (s *Service) RadioStations(ctx context.Context, branchID string) ([]model.RadioStation, error) {
	if branchID == "" {
		return []model.RadioStation{}, nil
	}
	stations, err := s.repo.ListRadioStations(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("ラジオ局の取得に失敗しました: %w", err)
	}
	return nonNil(stations), nil
}

// Forums は掲示板を返す。
func (s *Service) Forums(ctx context.Context, branchID string) ([]model.Forum, error) {
	if branchID == "" {
		return []model.Forum{}, nil
	}
	forums, err := s.repo.ListForums(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("掲示板の取得に失敗しました: %w", err)
	}
	return nonNil(forums), nil
}

// BlogPosts は公開済みのブログ記事を新しい順で返す。
func (s *Service) BlogPosts(ctx context.Context, branchID string, limit int) ([]model.BlogPost, error) {
	if branchID == "" {
		return []model.BlogPost{}, nil
	}
	posts, err := s.repo.ListBlogPosts(ctx, branchID, s.now(), NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("ブログ記事の取得に失敗しました: %w", err)
	}
	return nonNil(posts), nil
}

// Dashboard は所属ブランチの直近の行事、最新の説教、掲載中のお知らせをまとめて返す。
func (s *Service) Dashboard(ctx context.Context, branch *model.Branch) (*model.Dashboard, error) {
	d := &model.Dashboard{
		Branch:         branch,
		UpcomingEvents: []model.Event{},
		LatestSermons:  []model.Sermon{},
		Announcements:  []model.Announcement{},
	}
	if branch == nil {
		return d, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		events, err := s.Events(ctx, branch.ID, dashboardEvents)
		d.UpcomingEvents = events
		return err
	})
	g.Go(func() error {
		sermons, err := s.Sermons(ctx, branch.ID, dashboardSermons)
		d.LatestSermons = sermons
		return err
	})
	g.Go(func() error {
		items, err := s.Announcements(ctx, branch.ID, dashboardAnnouncements)
		d.Announcements = items
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
