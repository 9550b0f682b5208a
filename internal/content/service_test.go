package content

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/churchconnect/internal/model"
)

// mockContentRepo はContentRepositoryのモック。
type mockContentRepo struct {
	mu    sync.Mutex
	calls []string

	eventsErr error
	mediaType model.MediaType
	limit     int
	from      time.Time
}

func (m *mockContentRepo) called(name string) {
	m.mu.Lock()
	m.calls = append(m.calls, name)
	m.mu.Unlock()
}

func (m *mockContentRepo) ListEvents(ctx context.Context, branchID string, from time.Time, limit int) ([]model.Event, error) {
	m.called("events")
	m.mu.Lock()
	m.from = from
	m.mu.Unlock()
	if m.eventsErr != nil {
		return nil, m.eventsErr
	}
	return []model.Event{{ID: "e1", BranchID: branchID}}, nil
}
func (m *mockContentRepo) ListSermons(ctx context.Context, branchID string, limit int) ([]model.Sermon, error) {
	m.called("sermons")
	return []model.Sermon{{ID: "s1"}}, nil
}
func (m *mockContentRepo) ListAnnouncements(ctx context.Context, branchID string, now time.Time, limit int) ([]model.Announcement, error) {
	m.called("announcements")
	return nil, nil
}
func (m *mockContentRepo) ListMedia(ctx context.Context, branchID string, mediaType model.MediaType, limit int) ([]model.Media, error) {
	m.called("media")
	m.mediaType = mediaType
	m.limit = limit
	return []model.Media{{ID: "m1", MediaType: model.MediaTypeAudio}}, nil
}
func (m *mockContentRepo) ListGroups(ctx context.Context, branchID string) ([]model.Group, error) {
	m.called("groups")
	return nil, nil
}
func (m *mockContentRepo) ListRadioStations(ctx context.Context, branchID string) ([]model.RadioStation, error) {
	m.called("radio")
	return []model.RadioStation{{ID: "r1", IsLive: true}}, nil
}
func (m *mockContentRepo) ListForums(ctx context.Context, branchID string) ([]model.Forum, error) {
	m.called("forums")
	return nil, nil
}
func (m *mockContentRepo) ListBlogPosts(ctx context.Context, branchID string, now time.Time, limit int) ([]model.BlogPost, error) {
	m.called("blog")
	return nil, nil
}

func TestNormalizeLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, DefaultLimit}, {-1, DefaultLimit}, {10, 10}, {MaxLimit, MaxLimit}, {MaxLimit + 1, MaxLimit},
	}
	for _, tt := range tests {
		if got := NormalizeLimit(tt.in); got != tt.want {
			t.Errorf("NormalizeLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestService_NoBranchReturnsEmptyWithoutStoreCall(t *testing.T) {
	repo := &mockContentRepo{}
	svc := NewService(repo)
	ctx := context.Background()

	events, _ := svc.Events(ctx, "", 0)
	sermons, _ := svc.Sermons(ctx, "", 0)
	groups, _ := svc.Groups(ctx, "")
	media, _ := svc.Media(ctx, "", "", 0)

	if events == nil || sermons == nil || groups == nil || media == nil {
		t.Error("空スライスを期待した")
	}
	if len(repo.calls) != 0 {
		t.Errorf("ブランチ未所属でストアが呼ばれた: %v", repo.calls)
	}
}

func TestService_Events_UsesCurrentTime(t *testing.T) {
	repo := &mockContentRepo{}
	svc := NewService(repo)
	fixed := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	events, err := svc.Events(context.Background(), "branch-1", 0)
	if err != nil {
		t.Fatalf("Events がエラーを返した: %v", err)
	}
	if len(events) != 1 || !repo.from.Equal(fixed) {
		t.Errorf("events=%v from=%v", events, repo.from)
	}
}

func TestService_NilResultsBecomeEmptySlices(t *testing.T) {
	svc := NewService(&mockContentRepo{})
	ctx := context.Background()

	ann, _ := svc.Announcements(ctx, "branch-1", 0)
	forums, _ := svc.Forums(ctx, "branch-1")
	posts, _ := svc.BlogPosts(ctx, "branch-1", 0)
	if ann == nil || forums == nil || posts == nil {
		t.Error("nilではなく空スライスを期待した")
	}
}

func TestService_Music_IsAudioMedia(t *testing.T) {
	repo := &mockContentRepo{}
	svc := NewService(repo)

	if _, err := svc.Music(context.Background(), "branch-1", 500); err != nil {
		t.Fatalf("Music がエラーを返した: %v", err)
	}
	if repo.mediaType != model.MediaTypeAudio {
		t.Errorf("種別 = %q, want audio", repo.mediaType)
	}
	if repo.limit != MaxLimit {
		t.Errorf("件数 = %d, want %d", repo.limit, MaxLimit)
	}
}

func TestService_Media_InvalidType(t *testing.T) {
	repo := &mockContentRepo{}
	svc := NewService(repo)

	_, err := svc.Media(context.Background(), "branch-1", "podcast", 0)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
		t.Fatalf("VALIDATION を期待したが %v", err)
	}
	if len(repo.calls) != 0 {
		t.Error("不正な種別でストアが呼ばれた")
	}
}

func TestService_Dashboard(t *testing.T) {
	repo := &mockContentRepo{}
	svc := NewService(repo)
	branch := &model.Branch{ID: "branch-1", Name: "Central"}

	d, err := svc.Dashboard(context.Background(), branch)
	if err != nil {
		t.Fatalf("Dashboard がエラーを返した: %v", err)
	}
	if d.Branch != branch || len(d.UpcomingEvents) != 1 || len(d.LatestSermons) != 1 {
		t.Errorf("ダッシュボード = %+v", d)
	}
	if d.Announcements == nil {
		t.Error("お知らせはnilではなく空スライスであるべき")
	}
	if len(repo.calls) != 3 {
		t.Errorf("ストア呼び出し = %v", repo.calls)
	}
}

func TestService_Dashboard_NoBranch(t *testing.T) {
	repo := &mockContentRepo{}
	d, err := NewService(repo).Dashboard(context.Background(), nil)
	if err != nil {
		t.Fatalf("Dashboard がエラーを返した: %v", err)
	}
	if d.UpcomingEvents == nil || d.LatestSermons == nil || d.Announcements == nil {
		t.Error("空スライスを期待した")
	}
	if len(repo.calls) != 0 {
		t.Error("ブランチ未所属でストアが呼ばれた")
	}
}

func TestService_Dashboard_PropagatesError(t *testing.T) {
	repo := &mockContentRepo{eventsErr: errors.New("timeout")}
	_, err := NewService(repo).Dashboard(context.Background(), &model.Branch{ID: "branch-1"})
	if err == nil || !errors.Is(err, repo.eventsErr) {
		t.Errorf("ラップされたエラーを期待したが %v", err)
	}
}
