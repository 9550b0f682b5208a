package bible

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrKeyMissing はプロバイダのアクセスキーが設定されていないことを表す。
var ErrKeyMissing = errors.New("scripture api key is not configured")

// KeySource はプロバイダのアクセスキーの取得元。
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// StaticKeySource は設定値のキーをそのまま返す。
type StaticKeySource string

// APIKey はキーを返す。空の場合はErrKeyMissingを返す。
func (s StaticKeySource) APIKey(_ context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrKeyMissing
	}
	return string(s), nil
}

// FunctionInvoker はBaaSのEdge Functionを呼び出す。supabase.FunctionsClientが実装する。
type FunctionInvoker interface {
	Invoke(ctx context.Context, name string, in, out any) error
}

// FunctionKeySource はEdge Functionからキーを取得する。
// 取得に成功したキーはInvalidateされるまでキャッシュする。
type FunctionKeySource struct {
	invoker  FunctionInvoker
	function string

	mu  sync.Mutex
	key string
}

// NewFunctionKeySource はFunctionKeySourceを生成する。
func NewFunctionKeySource(invoker FunctionInvoker, function string) *FunctionKeySource {
	return &FunctionKeySource{invoker: invoker, function: function}
}

type keyResponse struct {
	APIKey string `json:"apiKey"`
}

// APIKey はキャッシュ済みのキー、なければEdge Functionから取得したキーを返す。
func (s *FunctionKeySource) APIKey(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != "" {
		return s.key, nil
	}

	var resp keyResponse
	if err := s.invoker.Invoke(ctx, s.function, nil, &resp); err != nil {
		return "", fmt.Errorf("failed to retrieve scripture api key: %w", err)
	}
	if strings.TrimSpace(resp.APIKey) == "" {
		return "", ErrKeyMissing
	}
	s.key = resp.APIKey
	return s.key, nil
}

// Invalidate はキャッシュしたキーを破棄する。プロバイダがキーを拒否した場合に呼ぶ。
func (s *FunctionKeySource) Invalidate() {
	s.mu.Lock()
	s.key = ""
	s.mu.Unlock()
}
