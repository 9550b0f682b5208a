package bible

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL はプロバイダAPIのベースURL。
	DefaultBaseURL = "https://api.scripture.api.bible/v1"

	// chapterQuery は章本文の取得オプション。プレーンテキストで節番号のみを含める。
	chapterQuery = "content-type=text&include-notes=false&include-titles=false&include-chapter-numbers=false&include-verse-numbers=true"

	maxResponseSize = 4 << 20
)

// Book は聖書の書。
type Book struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	NameLong     string `json:"nameLong"`
	Abbreviation string `json:"abbreviation"`
}

// Chapter は章の本文と、それを節ごとに分割したもの。
type Chapter struct {
	ID        string
	BookID    string
	Number    string
	Reference string
	Verses    []string
}

// StatusError はプロバイダが成功以外のステータスを返したことを表す。
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scripture provider returned status %d", e.Status)
}

// Recorder はプロバイダ呼び出しの記録先。metrics.Collectorが実装する。
type Recorder interface {
	RecordScriptureRequest(operation, outcome string, duration time.Duration)
}

// keyInvalidator はキャッシュしたキーを破棄できるKeySource。
type keyInvalidator interface {
	Invalidate()
}

// Client はプロバイダAPIのクライアント。
// 呼び出しはレートリミッターで間引かれ、結果はキャッシュしない。
type Client struct {
	httpClient *http.Client
	keys       KeySource
	limiter    *rate.Limiter
	logger     *slog.Logger
	recorder   Recorder
	baseURL    string // テスト用にベースURLを差し替え可能
}

// NewClient はClientを生成する。ratePerSecが0以下の場合は間引かない。
func NewClient(baseURL string, httpClient *http.Client, keys KeySource, ratePerSec float64, logger *slog.Logger, recorder Recorder) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limit := rate.Inf
	burst := 1
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
		burst = max(1, int(ratePerSec))
	}
	return &Client{
		httpClient: httpClient,
		keys:       keys,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
		recorder:   recorder,
		baseURL:    baseURL,
	}
}

// ListBooks は翻訳に含まれる書の一覧を返す。
func (c *Client) ListBooks(ctx context.Context, translationID string) ([]Book, error) {
	var resp struct {
		Data []Book `json:"data"`
	}
	path := "/bibles/" + url.PathEscape(translationID) + "/books"
	if err := c.get(ctx, "list_books", path, "", &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return []Book{}, nil
	}
	return resp.Data, nil
}

// FetchChapter は章の本文を取得し、節ごとに分割して返す。
func (c *Client) FetchChapter(ctx context.Context, translationID, bookID string, chapter int) (*Chapter, error) {
	var resp struct {
		Data struct {
			ID        string `json:"id"`
			BookID    string `json:"bookId"`
			Number    string `json:"number"`
			Reference string `json:"reference"`
			Content   string `json:"content"`
		} `json:"data"`
	}
	path := "/bibles/" + url.PathEscape(translationID) +
		"/books/" + url.PathEscape(bookID) +
		"/chapters/" + strconv.Itoa(chapter)
	if err := c.get(ctx, "fetch_chapter", path, chapterQuery, &resp); err != nil {
		return nil, err
	}

	return &Chapter{
		ID:        resp.Data.ID,
		BookID:    resp.Data.BookID,
		Number:    resp.Data.Number,
		Reference: resp.Data.Reference,
		Verses:    ParseVerses(resp.Data.Content),
	}, nil
}

// CountChapters は書の章数を返す。序文（intro）など番号のない章は数えない。
func (c *Client) CountChapters(ctx context.Context, translationID, bookID string) (int, error) {
	var resp struct {
		Data []struct {
			Number string `json:"number"`
		} `json:"data"`
	}
	path := "/bibles/" + url.PathEscape(translationID) +
		"/books/" + url.PathEscape(bookID) + "/chapters"
	if err := c.get(ctx, "count_chapters", path, "", &resp); err != nil {
		return 0, err
	}

	count := 0
	for _, ch := range resp.Data {
		if _, err := strconv.Atoi(ch.Number); err == nil {
			count++
		}
	}
	return count, nil
}

// get はGETリクエストを送り、JSONレスポンスをoutにデコードする。
func (c *Client) get(ctx context.Context, operation, path, rawQuery string, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.recorder == nil {
			return
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.recorder.RecordScriptureRequest(operation, outcome, time.Since(start))
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("scripture request throttled: %w", err)
	}

	key, err := c.keys.APIKey(ctx)
	if err != nil {
		return err
	}

	reqURL := c.baseURL + path
	if rawQuery != "" {
		reqURL += "?" + rawQuery
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create scripture request: %w", err)
	}
	req.Header.Set("api-key", key)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("聖書APIの呼び出しに失敗しました",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("scripture request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read scripture response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("聖書APIがエラーステータスを返しました",
			slog.String("operation", operation),
			slog.Int("http_status", resp.StatusCode),
		)
		if resp.StatusCode == http.StatusUnauthorized {
			if inv, ok := c.keys.(keyInvalidator); ok {
				inv.Invalidate()
			}
		}
		return &StatusError{Status: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode scripture response: %w", err)
	}
	return nil
}
