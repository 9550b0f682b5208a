package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/churchconnect/internal/metrics"
	"github.com/hitoshi/churchconnect/internal/model"
	"github.com/hitoshi/churchconnect/internal/repository"
	"github.com/hitoshi/churchconnect/internal/security"
)

// 失敗理由（メトリクスのラベル値）
const (
	ReasonSSRFBlocked     = "ssrf_blocked"
	ReasonRequestFailed   = "request_failed"
	ReasonHTTPStatus      = "http_status"
	ReasonFeedNotDetected = "feed_not_detected"
	ReasonParseFailed     = "parse_failed"
	ReasonUpsertFailed    = "upsert_failed"
)

// SyncError は1ブランチの同期失敗を表す。
type SyncError struct {
	Reason string
	Result FetchResult
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *SyncError) Unwrap() error {
	return e.Err
}

// SyncResult は1ブランチの同期結果を表す。
type SyncResult struct {
	FeedURL  string
	Inserted int
	Updated  int
	Skipped  int
}

// Fetcher はブランチの説教ポッドキャストフィードを取得し、sermonsテーブルへ取り込む。
// フィードURLの代わりにWebサイトURLが登録されている場合は<link rel="alternate">から検出する。
type Fetcher struct {
	sermonRepo  repository.SermonRepository
	guard       security.URLGuard
	sanitizer   security.Sanitizer
	recorder    metrics.SyncRecorder
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
	now         func() time.Time
}

// NewFetcher はFetcherの新しいインスタンスを生成する。recorderはnilでもよい。
func NewFetcher(
	sermonRepo repository.SermonRepository,
	guard security.URLGuard,
	sanitizer security.Sanitizer,
	recorder metrics.SyncRecorder,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
) *Fetcher {
	return &Fetcher{
		sermonRepo:  sermonRepo,
		guard:       guard,
		sanitizer:   sanitizer,
		recorder:    recorder,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		now:         time.Now,
	}
}

// fetchResponse はHTTPレスポンスのうち同期に必要な部分。
type fetchResponse struct {
	statusCode  int
	contentType string
	body        []byte
}

// Sync はブランチのフィードを取得・パースし、説教をアップサートする。
// 失敗時は*SyncErrorを返す。
func (f *Fetcher) Sync(ctx context.Context, branch model.Branch) (*SyncResult, error) {
	start := time.Now()
	feedURL := strings.TrimSpace(branch.SermonFeedURL)

	resp, err := f.get(ctx, feedURL)
	if err != nil {
		return nil, f.fail(branch, err)
	}

	if !IsDirectFeed(resp.contentType, resp.body) {
		detected, err := f.detect(branch, feedURL, resp)
		if err != nil {
			return nil, f.fail(branch, err)
		}
		f.logger.Info("WebサイトからフィードURLを検出しました",
			slog.String("branch_id", branch.ID),
			slog.String("site_url", feedURL),
			slog.String("feed_url", detected),
		)
		feedURL = detected
		resp, err = f.get(ctx, feedURL)
		if err != nil {
			return nil, f.fail(branch, err)
		}
	}

	f.record(func(r metrics.SyncRecorder) { r.RecordFetchLatency(time.Since(start)) })

	parsedFeed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.body))
	if err != nil {
		f.record(func(r metrics.SyncRecorder) { r.RecordParseFailure(branch.ID) })
		return nil, f.fail(branch, &SyncError{Reason: ReasonParseFailed, Result: FetchResultBackoff, Err: err})
	}

	sermons := convertFeedItems(parsedFeed)
	result := &SyncResult{FeedURL: feedURL, Skipped: len(parsedFeed.Items) - len(sermons)}

	for i := range sermons {
		sermon := f.toSermon(branch.ID, &sermons[i])
		inserted, err := f.sermonRepo.Upsert(ctx, sermon)
		if err != nil {
			return nil, f.fail(branch, &SyncError{Reason: ReasonUpsertFailed, Result: FetchResultBackoff, Err: err})
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	f.record(func(r metrics.SyncRecorder) {
		r.RecordSermonsUpserted(result.Inserted + result.Updated)
		r.RecordSyncSuccess(branch.ID)
	})

	f.logger.Info("説教フィードの同期が完了しました",
		slog.String("branch_id", branch.ID),
		slog.String("feed_url", feedURL),
		slog.Int("sermons_inserted", result.Inserted),
		slog.Int("sermons_updated", result.Updated),
		slog.Int("items_skipped", result.Skipped),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return result, nil
}

// get はSSRF検証済みのURLを取得する。200以外は*SyncErrorを返す。
func (f *Fetcher) get(ctx context.Context, rawURL string) (*fetchResponse, error) {
	if err := f.guard.ValidateURL(rawURL); err != nil {
		return nil, &SyncError{Reason: ReasonSSRFBlocked, Result: FetchResultStop, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &SyncError{Reason: ReasonRequestFailed, Result: FetchResultStop, Err: err}
	}
	req.Header.Set("User-Agent", "ChurchConnect/1.0 Sermon Sync")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html;q=0.8, */*;q=0.5")

	resp, err := f.guard.NewSafeClient(f.timeout).Do(req)
	if err != nil {
		return nil, &SyncError{Reason: ReasonRequestFailed, Result: FetchResultBackoff, Err: err}
	}
	defer resp.Body.Close()

	f.record(func(r metrics.SyncRecorder) { r.RecordHTTPStatus(resp.StatusCode) })

	if result := ClassifyHTTPStatus(resp.StatusCode); result != FetchResultOK {
		if result == FetchResultUnknown {
			result = FetchResultBackoff
		}
		return nil, &SyncError{
			Reason: ReasonHTTPStatus,
			Result: result,
			Err:    fmt.Errorf("HTTPステータス %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, &SyncError{Reason: ReasonRequestFailed, Result: FetchResultBackoff, Err: fmt.Errorf("レスポンスの読み取りに失敗: %w", err)}
	}

	return &fetchResponse{
		statusCode:  resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        body,
	}, nil
}

// detect はHTMLレスポンスからフィードURLを検出する。
func (f *Fetcher) detect(branch model.Branch, siteURL string, resp *fetchResponse) (string, error) {
	if !IsHTML(resp.contentType) {
		return "", &SyncError{
			Reason: ReasonFeedNotDetected,
			Result: FetchResultStop,
			Err:    fmt.Errorf("フィードでもHTMLでもないレスポンスです: %s", resp.contentType),
		}
	}
	best := SelectBestFeed(ParseFeedLinksFromHTML(resp.body, siteURL), siteURL)
	if best == nil {
		return "", &SyncError{
			Reason: ReasonFeedNotDetected,
			Result: FetchResultStop,
			Err:    fmt.Errorf("ブランチ %s のWebサイトにフィードリンクがありません", branch.ID),
		}
	}
	return best.URL, nil
}

// fail は失敗をログとメトリクスに記録し、*SyncErrorとして返す。
func (f *Fetcher) fail(branch model.Branch, err error) error {
	var syncErr *SyncError
	if !errors.As(err, &syncErr) {
		syncErr = &SyncError{Reason: ReasonRequestFailed, Result: FetchResultBackoff, Err: err}
	}

	f.record(func(r metrics.SyncRecorder) { r.RecordSyncFailure(branch.ID, syncErr.Reason) })
	f.logger.Warn("説教フィードの同期に失敗しました",
		slog.String("branch_id", branch.ID),
		slog.String("feed_url", branch.SermonFeedURL),
		slog.String("reason", syncErr.Reason),
		slog.String("error", syncErr.Err.Error()),
	)
	return syncErr
}

func (f *Fetcher) record(fn func(metrics.SyncRecorder)) {
	if f.recorder != nil {
		fn(f.recorder)
	}
}

// toSermon はパース済みの説教を保存用のモデルに変換する。
// 説明文はサニタイズし、タイトルと話者はプレーンテキストにする。
func (f *Fetcher) toSermon(branchID string, p *model.ParsedSermon) *model.Sermon {
	sermonDate := f.now()
	if p.PublishedAt != nil {
		sermonDate = *p.PublishedAt
	}
	title := f.sanitizer.PlainText(p.Title)
	if title == "" {
		title = "無題の説教"
	}
	return &model.Sermon{
		BranchID:     branchID,
		GUID:         p.GUID,
		Title:        title,
		Description:  f.sanitizer.Sanitize(p.Description),
		Speaker:      f.sanitizer.PlainText(p.Speaker),
		SermonDate:   sermonDate,
		MediaURL:     p.MediaURL,
		MediaType:    p.MediaType,
		ThumbnailURL: p.ImageURL,
	}
}

// convertFeedItems はgofeedのアイテムをmodel.ParsedSermonに変換する。
// GUIDもリンクもメディアURLも持たないアイテムは冪等に取り込めないため除外する。
func convertFeedItems(feed *gofeed.Feed) []model.ParsedSermon {
	sermons := make([]model.ParsedSermon, 0, len(feed.Items))

	var feedAuthor, feedImage string
	if feed.ITunesExt != nil {
		feedAuthor = feed.ITunesExt.Author
		feedImage = feed.ITunesExt.Image
	}
	if feedAuthor == "" && feed.Author != nil {
		feedAuthor = feed.Author.Name
	}
	if feed.Image != nil && feed.Image.URL != "" {
		feedImage = feed.Image.URL
	}

	for _, item := range feed.Items {
		if item == nil {
			continue
		}

		parsed := model.ParsedSermon{
			Title:       item.Title,
			Description: item.Content,
		}
		if parsed.Description == "" {
			parsed.Description = item.Description
		}

		// メディア
		for _, enc := range item.Enclosures {
			if enc == nil || enc.URL == "" {
				continue
			}
			parsed.MediaURL = enc.URL
			parsed.MediaType = mediaTypeOf(enc.Type, enc.URL)
			break
		}

		// GUID
		parsed.GUID = firstNonEmpty(item.GUID, item.Link, parsed.MediaURL)
		if parsed.GUID == "" {
			continue
		}

		// 話者
		if item.ITunesExt != nil {
			parsed.Speaker = item.ITunesExt.Author
		}
		if parsed.Speaker == "" && item.Author != nil {
			parsed.Speaker = item.Author.Name
		}
		if parsed.Speaker == "" && len(item.Authors) > 0 && item.Authors[0] != nil {
			parsed.Speaker = item.Authors[0].Name
		}
		if parsed.Speaker == "" {
			parsed.Speaker = feedAuthor
		}

		// 公開日時
		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			parsed.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			parsed.PublishedAt = &t
		}

		// サムネイル
		switch {
		case item.Image != nil && item.Image.URL != "":
			parsed.ImageURL = item.Image.URL
		case item.ITunesExt != nil && item.ITunesExt.Image != "":
			parsed.ImageURL = item.ITunesExt.Image
		default:
			parsed.ImageURL = feedImage
		}

		sermons = append(sermons, parsed)
	}

	return sermons
}

// mediaTypeOf はエンクロージャのMIMEタイプからメディア種別を判定する。
// 判定できない場合は拡張子を見て、それでも不明なら音声とする。
func mediaTypeOf(mimeType, rawURL string) model.MediaType {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.HasPrefix(mt, "video/"):
		return model.MediaTypeVideo
	case strings.HasPrefix(mt, "audio/"):
		return model.MediaTypeAudio
	case strings.HasPrefix(mt, "image/"):
		return model.MediaTypeImage
	}

	lower := strings.ToLower(rawURL)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range []string{".mp4", ".m4v", ".mov", ".webm"} {
		if strings.HasSuffix(lower, ext) {
			return model.MediaTypeVideo
		}
	}
	return model.MediaTypeAudio
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
