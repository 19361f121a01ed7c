package app

import (
	"context"
	"time"

	"raidbot/internal/engine"
)

// deferredNotifier breaks the construction cycle between the engine and the
// bot: the engine needs a notifier before the bot exists, and the bot is that
// notifier. Events raised before the delegate is set are dropped.
type deferredNotifier struct {
	delegate engine.Notifier
}

func (n *deferredNotifier) PostSubmitted(ctx context.Context, ownerName string) {
	if n.delegate != nil {
		n.delegate.PostSubmitted(ctx, ownerName)
	}
}

func (n *deferredNotifier) PostApproved(ctx context.Context, ownerID int64) {
	if n.delegate != nil {
		n.delegate.PostApproved(ctx, ownerID)
	}
}

func (n *deferredNotifier) PostRejected(ctx context.Context, ownerID int64, reason string) {
	if n.delegate != nil {
		n.delegate.PostRejected(ctx, ownerID, reason)
	}
}

func (n *deferredNotifier) ReferralCredited(ctx context.Context, referrerID int64, amount float64) {
	if n.delegate != nil {
		n.delegate.ReferralCredited(ctx, referrerID, amount)
	}
}

func (n *deferredNotifier) CompletionRewarded(ctx context.Context, participantID int64, amount float64) {
	if n.delegate != nil {
		n.delegate.CompletionRewarded(ctx, participantID, amount)
	}
}

func (n *deferredNotifier) VerificationRequested(ctx context.Context, ownerID, postID, participantID int64, participantName, link string) {
	if n.delegate != nil {
		n.delegate.VerificationRequested(ctx, ownerID, postID, participantID, participantName, link)
	}
}

func (n *deferredNotifier) OwnerSanctioned(ctx context.Context, ownerID int64, until time.Time) {
	if n.delegate != nil {
		n.delegate.OwnerSanctioned(ctx, ownerID, until)
	}
}
