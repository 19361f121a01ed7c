package engine

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"raidbot/internal/models"
)

// Sweeper runs the periodic jobs that advance the post lifecycle without any
// interactive trigger. Each sweep type runs at most one instance at a time.
type Sweeper struct {
	engine    *Engine
	scheduler gocron.Scheduler
	logger    *zap.Logger
}

func NewSweeper(engine *Engine, logger *zap.Logger) (*Sweeper, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Sweeper{engine: engine, scheduler: scheduler, logger: logger}, nil
}

// Start schedules the three sweeps: auto-approval every 10 minutes, expiry
// and owner sanctions hourly.
func (s *Sweeper) Start() error {
	jobs := []struct {
		name     string
		interval time.Duration
		run      func(context.Context) error
	}{
		{"auto_approve", 10 * time.Minute, s.engine.AutoApprovePending},
		{"expire", time.Hour, s.engine.ExpirePosts},
		{"sanction", time.Hour, s.engine.SanctionUnresponsiveOwners},
	}

	for _, job := range jobs {
		name := job.name
		run := job.run
		_, err := s.scheduler.NewJob(
			gocron.DurationJob(job.interval),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				defer cancel()
				if err := run(ctx); err != nil {
					s.logger.Error("sweep failed", zap.String("sweep", name), zap.Error(err))
				}
			}),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return err
		}
	}

	s.scheduler.Start()
	s.logger.Info("sweeps scheduled")
	return nil
}

func (s *Sweeper) Stop() error {
	return s.scheduler.Shutdown()
}

// AutoApprovePending approves pending posts older than the grace window,
// applying the same deduct-or-reject rule as manual approval.
func (e *Engine) AutoApprovePending(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-e.cfg.ApprovalGraceWindow)
	posts, err := e.store.PendingPostsBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, post := range posts {
		status, err := e.Approve(ctx, post.ID)
		if err != nil {
			// One bad post must not stop the batch.
			e.logger.Error("auto-approve failed",
				zap.Int64("post_id", post.ID), zap.Error(err))
			continue
		}
		e.logger.Info("auto-approved",
			zap.Int64("post_id", post.ID),
			zap.String("outcome", string(status)))
	}
	return nil
}

// ExpirePosts transitions approved posts past the engagement window to
// expired in one bulk conditional update.
func (e *Engine) ExpirePosts(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-e.cfg.EngagementWindow)
	count, err := e.store.ExpireApprovedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if count > 0 {
		e.logger.Info("expired posts", zap.Int64("count", count))
	}
	return nil
}

// SanctionUnresponsiveOwners bans owners of expired posts who left
// verification requests unresolved past the grace window. The stale requests
// are settled in the participant's favor, so each offending post triggers
// exactly one sanction.
func (e *Engine) SanctionUnresponsiveOwners(ctx context.Context) error {
	now := time.Now().UTC()
	approvedBefore := now.Add(-e.cfg.EngagementWindow - e.cfg.VerificationGraceWindow)
	stale, err := e.store.StaleVerifications(ctx, approvedBefore)
	if err != nil {
		return err
	}

	until := now.Add(e.cfg.SanctionDuration)
	sanctioned := make(map[int64]bool)
	for _, v := range stale {
		ok, err := e.store.ResolveVerification(ctx, v.PostID, v.ParticipantID, models.VerificationConfirmed, now)
		if err != nil {
			e.logger.Error("failed to settle stale verification",
				zap.Int64("request_id", v.RequestID), zap.Error(err))
			continue
		}
		if ok {
			if err := e.store.CreditSlots(ctx, v.ParticipantID, e.cfg.TaskReward, models.CauseTask); err != nil {
				e.logger.Error("failed to credit settled verification",
					zap.Int64("participant_id", v.ParticipantID), zap.Error(err))
			} else {
				e.notify.CompletionRewarded(ctx, v.ParticipantID, e.cfg.TaskReward)
			}
		}

		if sanctioned[v.OwnerID] {
			continue
		}
		if err := e.store.SetBans(ctx, v.OwnerID, until, until); err != nil {
			e.logger.Error("failed to sanction owner",
				zap.Int64("owner_id", v.OwnerID), zap.Error(err))
			continue
		}
		sanctioned[v.OwnerID] = true
		e.notify.OwnerSanctioned(ctx, v.OwnerID, until)
		e.logger.Info("owner sanctioned",
			zap.Int64("owner_id", v.OwnerID),
			zap.Time("until", until))
	}
	return nil
}
