package fetch

import (
	"sync"
	"time"
)

// FetchResult はHTTPステータスコードに基づくフェッチ結果の分類。
type FetchResult int

const (
	// FetchResultOK はフェッチ成功（200）。
	FetchResultOK FetchResult = iota
	// FetchResultStop は長期間の停止が必要なステータス（404/410/401/403）。
	FetchResultStop
	// FetchResultBackoff はバックオフが必要なステータス（429/5xx）。
	FetchResultBackoff
	// FetchResultUnknown は未知のステータスコード。
	FetchResultUnknown
)

const (
	// initialBackoff は指数バックオフの初回遅延（30分）。
	initialBackoff = 30 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（12時間）。停止扱いのブランチにも適用する。
	maxBackoff = 12 * time.Hour
)

// ClassifyHTTPStatus はHTTPステータスコードをフェッチ結果に分類する。
func ClassifyHTTPStatus(statusCode int) FetchResult {
	switch {
	case statusCode == 200:
		return FetchResultOK
	case statusCode == 404 || statusCode == 410:
		return FetchResultStop
	case statusCode == 401 || statusCode == 403:
		return FetchResultStop
	case statusCode == 429:
		return FetchResultBackoff
	case statusCode >= 500:
		return FetchResultBackoff
	default:
		return FetchResultUnknown
	}
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回30分、2倍ずつ増加、最大12時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// branchState はブランチごとの同期失敗状態。
type branchState struct {
	consecutiveErrors int
	nextAttemptAt     time.Time
	lastError         string
}

// BackoffTracker はブランチごとの連続失敗回数と次回同期可能時刻をメモリ上で管理する。
// branchesテーブルには同期状態を持たないため、ワーカープロセスの再起動でリセットされる。
type BackoffTracker struct {
	mu     sync.Mutex
	states map[string]*branchState
	now    func() time.Time
}

// NewBackoffTracker は新しいBackoffTrackerを生成する。
func NewBackoffTracker() *BackoffTracker {
	return &BackoffTracker{
		states: make(map[string]*branchState),
		now:    time.Now,
	}
}

// Due はブランチが同期対象かどうかを返す。
func (t *BackoffTracker) Due(branchID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[branchID]
	if !ok {
		return true
	}
	return !t.now().Before(st.nextAttemptAt)
}

// ApplyBackoff は連続エラー回数をインクリメントし、指数バックオフで次回同期時刻を設定する。
func (t *BackoffTracker) ApplyBackoff(branchID, reason string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.state(branchID)
	st.consecutiveErrors++
	st.lastError = reason
	delay := CalculateBackoff(st.consecutiveErrors - 1)
	st.nextAttemptAt = t.now().Add(delay)
	return delay
}

// ApplyStop はブランチの同期を最大バックオフ期間だけ停止する。
func (t *BackoffTracker) ApplyStop(branchID, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.state(branchID)
	st.consecutiveErrors++
	st.lastError = reason
	st.nextAttemptAt = t.now().Add(maxBackoff)
}

// ApplySuccess は同期成功時にブランチの失敗状態を破棄する。
func (t *BackoffTracker) ApplySuccess(branchID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, branchID)
}

// ConsecutiveErrors はブランチの連続エラー回数を返す。
func (t *BackoffTracker) ConsecutiveErrors(branchID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.states[branchID]; ok {
		return st.consecutiveErrors
	}
	return 0
}

func (t *BackoffTracker) state(branchID string) *branchState {
	st, ok := t.states[branchID]
	if !ok {
		st = &branchState{}
		t.states[branchID] = st
	}
	return st
}
