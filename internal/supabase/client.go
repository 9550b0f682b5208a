// Package supabase はBaaS（認証・ストレージ・Edge Functions）のHTTPクライアントを提供する。
// リレーショナルストアへのアクセスはrepositoryパッケージがPostgreSQL経由で直接行う。
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBodySize はエラーレスポンスとして読み取るボディの上限。
const maxErrorBodySize = 64 * 1024

// Config はBaaSへの接続設定を表す。
type Config struct {
	URL            string // 例: https://xxxx.supabase.co（末尾スラッシュなし）
	AnonKey        string
	ServiceRoleKey string
	JWTSecret      string // 空の場合はアクセストークンの署名検証を省略する
}

// Error はBaaSがエラーステータスを返した場合のエラー。
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase: %d: %s", e.Status, e.Message)
}

// IsStatus はerrがBaaSのエラーで、ステータスコードがstatusのいずれかに一致するかを返す。
func IsStatus(err error, status ...int) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, s := range status {
		if apiErr.Status == s {
			return true
		}
	}
	return false
}

// errorBody はGoTrue/Storage/Functionsのエラーレスポンスの各形式を受け付ける。
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	apiErr := &Error{Status: resp.StatusCode}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		apiErr.Code = firstNonEmpty(eb.ErrorCode, eb.Error)
		apiErr.Message = firstNonEmpty(eb.ErrorDescription, eb.Msg, eb.Message)
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// doJSON はJSONリクエストを送信し、2xxの場合はレスポンスをoutにデコードする。
// outがnilの場合はボディを読み捨てる。
func doJSON(ctx context.Context, httpClient *http.Client, method, url string, headers map[string]string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
