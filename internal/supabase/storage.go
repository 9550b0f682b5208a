package supabase

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// StorageClient はBaaSのオブジェクトストレージのクライアント。
type StorageClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewStorageClient はStorageClientを生成する。
func NewStorageClient(cfg Config, httpClient *http.Client) *StorageClient {
	return &StorageClient{cfg: cfg, httpClient: httpClient}
}

// Upload はオブジェクトを上書き可能（upsert）でアップロードする。
// accessTokenにはログイン中ユーザーのトークンを渡し、バケットのアクセス制御を適用させる。
func (c *StorageClient) Upload(ctx context.Context, bucket, path, contentType string, body io.Reader, accessToken string) error {
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.cfg.URL, url.PathEscape(bucket), escapePath(path))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("apikey", c.cfg.AnonKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")
	req.Header.Set("Cache-Control", "max-age=3600")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("failed to upload object: %w", parseError(resp))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// PublicURL は公開バケット内のオブジェクトのURLを返す。
func (c *StorageClient) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.cfg.URL, url.PathEscape(bucket), escapePath(path))
}

func escapePath(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
