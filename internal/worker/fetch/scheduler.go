// Package fetch はブランチの説教ポッドキャストフィードのバックグラウンド同期を提供する。
// スケジューラ、フェッチャー、フィード検出、バックオフ戦略を含む。
package fetch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/churchconnect/internal/model"
)

// BranchLister は同期対象ブランチの取得インターフェース。
type BranchLister interface {
	// ListWithSermonFeed は説教フィードURLが設定されたブランチを返す。
	ListWithSermonFeed(ctx context.Context) ([]model.Branch, error)
}

// BranchSyncer は1ブランチの同期を実行するインターフェース。
type BranchSyncer interface {
	Sync(ctx context.Context, branch model.Branch) (*SyncResult, error)
}

// Scheduler は説教フィード同期のスケジューリングと並列制御を行う。
// 一定間隔のティッカーで対象ブランチを取得し、
// semaphoreパターンで最大並列数を制御しながら同期を実行する。
type Scheduler struct {
	branches       BranchLister
	syncer         BranchSyncer
	backoff        *BackoffTracker
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(
	branches BranchLister,
	syncer BranchSyncer,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		branches:       branches,
		syncer:         syncer,
		backoff:        NewBackoffTracker(),
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("説教同期スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("説教同期サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("説教同期スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("説教同期サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は同期対象ブランチを1回取得し、並列で同期を実行する。
// バックオフ中のブランチはスキップする。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	all, err := s.branches.ListWithSermonFeed(ctx)
	if err != nil {
		return err
	}

	branches := make([]model.Branch, 0, len(all))
	for _, b := range all {
		if s.backoff.Due(b.ID) {
			branches = append(branches, b)
		}
	}

	if len(branches) == 0 {
		s.logger.Info("同期対象のブランチはありません",
			slog.Int("skipped_by_backoff", len(all)),
		)
		return nil
	}

	s.logger.Info("説教同期サイクルを開始します",
		slog.Int("branch_count", len(branches)),
		slog.Int("skipped_by_backoff", len(all)-len(branches)),
	)

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, branch := range branches {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}

		go func(b model.Branch) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := s.syncer.Sync(ctx, b); err != nil {
				s.handleFailure(b, err)
				return
			}
			s.backoff.ApplySuccess(b.ID)
		}(branch)
	}

	wg.Wait()

	s.logger.Info("説教同期サイクルが完了しました",
		slog.Int("branch_count", len(branches)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// handleFailure は失敗の分類に応じてバックオフまたは停止を適用する。
func (s *Scheduler) handleFailure(b model.Branch, err error) {
	var syncErr *SyncError
	if errors.As(err, &syncErr) && syncErr.Result == FetchResultStop {
		s.backoff.ApplyStop(b.ID, err.Error())
		s.logger.Warn("ブランチの説教同期を一時停止します",
			slog.String("branch_id", b.ID),
			slog.Duration("pause", maxBackoff),
			slog.String("error", err.Error()),
		)
		return
	}

	delay := s.backoff.ApplyBackoff(b.ID, err.Error())
	s.logger.Error("ブランチの説教同期に失敗しました",
		slog.String("branch_id", b.ID),
		slog.Int("consecutive_errors", s.backoff.ConsecutiveErrors(b.ID)),
		slog.Duration("retry_after", delay),
		slog.String("error", err.Error()),
	)
}
