// Package cleanup は不要データの自動削除ジョブを提供する。
// 期限切れセッションと、どのユーザーからも参照されなくなったローカルエンティティを
// 日次バッチで削除する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SessionPurger は期限切れセッションを削除するインターフェース。
type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// OrphanPurger は紐付けのないローカルエンティティを削除するインターフェース。
type OrphanPurger interface {
	DeleteOrphans(ctx context.Context, olderThan time.Time) (int64, error)
}

// CleanupJob は不要データの自動削除ジョブ。
// 冪等で、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	sessions  SessionPurger
	orphans   OrphanPurger
	logger    *slog.Logger
	Retention time.Duration // 孤立エンティティの保持期間（デフォルト: 30日）
	now       func() time.Time
}

// DefaultRetention は孤立エンティティのデフォルト保持期間。
const DefaultRetention = 30 * 24 * time.Hour

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(sessions SessionPurger, orphans OrphanPurger, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions:  sessions,
		orphans:   orphans,
		logger:    logger,
		Retention: DefaultRetention,
		now:       time.Now,
	}
}

// Run は期限切れセッションと保持期間を超えた孤立エンティティを削除する。
// 片方が失敗してももう片方は実行し、両方のエラーをまとめて返す。
// 保持期間内の孤立エンティティは残す。保持期間を超えた行でも、実行中の追加がロックしている行は
// リポジトリ側で対象外になる。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	sessionCount, sessErr := j.sessions.DeleteExpired(ctx)
	if sessErr != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", sessErr.Error()),
		)
		sessErr = fmt.Errorf("期限切れセッションの削除に失敗: %w", sessErr)
	}

	cutoff := j.now().Add(-j.Retention)
	orphanCount, orphanErr := j.orphans.DeleteOrphans(ctx, cutoff)
	if orphanErr != nil {
		j.logger.Error("孤立エンティティの削除に失敗しました",
			slog.String("error", orphanErr.Error()),
			slog.Duration("retention", j.Retention),
		)
		orphanErr = fmt.Errorf("孤立エンティティの削除に失敗: %w", orphanErr)
	}

	if err := errors.Join(sessErr, orphanErr); err != nil {
		return err
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_sessions", sessionCount),
		slog.Int64("deleted_orphans", orphanCount),
		slog.Duration("retention", j.Retention),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回実行し、以後intervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *CleanupJob) runOnce(ctx context.Context) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}
}
