package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// FunctionsClient はBaaSのEdge Functionsを呼び出すクライアント。
// サービスロールキーで認可するため、サーバー内部の呼び出しにのみ使用する。
type FunctionsClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewFunctionsClient はFunctionsClientを生成する。
func NewFunctionsClient(cfg Config, httpClient *http.Client) *FunctionsClient {
	return &FunctionsClient{cfg: cfg, httpClient: httpClient}
}

// Invoke は関数nameを呼び出し、JSONレスポンスをoutにデコードする。
// inがnilの場合はGETで呼び出す。
func (c *FunctionsClient) Invoke(ctx context.Context, name string, in, out any) error {
	key := c.cfg.ServiceRoleKey
	if key == "" {
		key = c.cfg.AnonKey
	}
	method := http.MethodGet
	if in != nil {
		method = http.MethodPost
	}

	err := doJSON(ctx, c.httpClient, method,
		c.cfg.URL+"/functions/v1/"+url.PathEscape(name),
		map[string]string{
			"apikey":        c.cfg.AnonKey,
			"Authorization": "Bearer " + key,
		},
		in, out,
	)
	if err != nil {
		return fmt.Errorf("failed to invoke function %s: %w", name, err)
	}
	return nil
}
