package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeResult struct {
	rowsAffected int64
	err          error
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, r.err }

// mockExecutor はExecutorのテスト用モック。
// PostgreSQLを使わず、SQLクエリの内容と引数を検証する。
type mockExecutor struct {
	mu     sync.Mutex
	calls  int
	query  string
	args   []interface{}
	result sql.Result
	err    error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.query = query
	m.args = args
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.result, m.err
}

func (m *mockExecutor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// lastLogEntry は最後に出力されたJSONログを返す。
func lastLogEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("ログのパースに失敗: %v (%s)", err, buf.String())
	}
	return entry
}

func TestNewCleanupJob_DefaultGraceDays(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockExecutor{}, newTestLogger(&buf))
	if job.GraceDays != 30 {
		t.Errorf("GraceDays = %d, want 30", job.GraceDays)
	}
}

func TestCleanupJob_Run_DeletesExpiredAnnouncements(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 5}}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Runがエラーを返した: %v", err)
	}

	if !strings.Contains(mock.query, "DELETE FROM announcements") {
		t.Errorf("announcementsテーブルを対象にしていない: %s", mock.query)
	}
	if !strings.Contains(mock.query, "expires_at IS NOT NULL") {
		t.Errorf("無期限のお知らせを除外していない: %s", mock.query)
	}
	if len(mock.args) != 1 || mock.args[0] != "30 days" {
		t.Errorf("interval引数 = %v, want [30 days]", mock.args)
	}

	entry := lastLogEntry(t, &buf)
	if entry["deleted_count"] != float64(5) {
		t.Errorf("deleted_count = %v, want 5", entry["deleted_count"])
	}
	if entry["grace_days"] != float64(30) {
		t.Errorf("grace_days = %v, want 30", entry["grace_days"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("duration_msがログに含まれていない")
	}
}

func TestCleanupJob_Run_CustomGraceDays(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewCleanupJob(mock, newTestLogger(&buf))
	job.GraceDays = 7

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Runがエラーを返した: %v", err)
	}
	if mock.args[0] != "7 days" {
		t.Errorf("interval引数 = %v, want 7 days", mock.args[0])
	}
}

func TestCleanupJob_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 0}}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("削除対象がなくてもエラーにしてはならない: %v", err)
		}
	}
	if entry := lastLogEntry(t, &buf); entry["deleted_count"] != float64(0) {
		t.Errorf("deleted_count = %v, want 0", entry["deleted_count"])
	}
}

func TestCleanupJob_Run_ReturnsErrorOnDBFailure(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{err: errors.New("connection refused")}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("DBエラー時はエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("元のエラーがラップされていない: %v", err)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("ERRORログが出力されていない: %s", buf.String())
	}
}

func TestCleanupJob_Run_RowsAffectedFailure(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{err: errors.New("not supported")}}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	if err := job.Run(context.Background()); err == nil {
		t.Error("削除件数の取得失敗時はエラーを返すべき")
	}
}

func TestCleanupJob_Run_RespectsContext(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := job.Run(ctx); err == nil {
		t.Error("キャンセル済みコンテキストではエラーを返すべき")
	}
}

func TestCleanupJob_Start_RunsImmediatelyAndStops(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for mock.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("起動直後にクリーンアップが実行されなかった")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("コンテキストのキャンセルで停止しなかった")
	}
}
