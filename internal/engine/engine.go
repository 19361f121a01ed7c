package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"raidbot/internal/models"
	"raidbot/internal/storage"
	"raidbot/internal/twitter"
)

// VerifyMode selects how completion claims are verified.
type VerifyMode string

const (
	// VerifyAuto checks the claim against the Twitter API.
	VerifyAuto VerifyMode = "auto"
	// VerifyManual routes the claim to the post owner for confirmation.
	VerifyManual VerifyMode = "manual"
)

// Config carries every policy knob of the slot economy. Values are fixed at
// construction; nothing in the engine reads globals.
type Config struct {
	StartingBalance         float64
	ReferralBonus           float64
	TaskReward              float64
	CooldownWindow          time.Duration
	ApprovalGraceWindow     time.Duration
	EngagementWindow        time.Duration
	VerificationGraceWindow time.Duration
	SanctionDuration        time.Duration
	VerifyMode              VerifyMode
}

// DefaultConfig returns the production policy values.
func DefaultConfig() Config {
	return Config{
		StartingBalance:         2,
		ReferralBonus:           0.5,
		TaskReward:              0.1,
		CooldownWindow:          12 * time.Hour,
		ApprovalGraceWindow:     time.Hour,
		EngagementWindow:        24 * time.Hour,
		VerificationGraceWindow: 4 * time.Hour,
		SanctionDuration:        48 * time.Hour,
		VerifyMode:              VerifyAuto,
	}
}

// LikeVerifier answers whether the account's linked Twitter user liked the
// given tweet. The answer is advisory input: idempotence and self-completion
// checks apply regardless of what it says.
type LikeVerifier interface {
	HasLiked(ctx context.Context, account *models.Account, tweetID string) (bool, error)
}

// Notifier consumes engine events and renders them as chat messages. Every
// method is best-effort: implementations log delivery failures and never
// return them, so a failed send cannot roll back a committed transition.
type Notifier interface {
	PostSubmitted(ctx context.Context, ownerName string)
	PostApproved(ctx context.Context, ownerID int64)
	PostRejected(ctx context.Context, ownerID int64, reason string)
	ReferralCredited(ctx context.Context, referrerID int64, amount float64)
	CompletionRewarded(ctx context.Context, participantID int64, amount float64)
	VerificationRequested(ctx context.Context, ownerID, postID, participantID int64, participantName, link string)
	OwnerSanctioned(ctx context.Context, ownerID int64, until time.Time)
}

// Engine implements the raid economy rules on top of the storage contracts.
type Engine struct {
	cfg      Config
	store    storage.Storage
	verifier LikeVerifier
	notify   Notifier
	logger   *zap.Logger
}

const verifierTimeout = 10 * time.Second

func New(cfg Config, store storage.Storage, verifier LikeVerifier, notify Notifier, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    store,
		verifier: verifier,
		notify:   notify,
		logger:   logger,
	}
}

func (e *Engine) Config() Config { return e.cfg }

// ───── account lifecycle ─────

// Register creates the account with the starting balance. Registering twice
// is a no-op reported through the created flag. The referral bonus is
// credited exactly once, here, at the referee's creation.
func (e *Engine) Register(ctx context.Context, telegramID int64, name string, referredBy *int64) (bool, error) {
	if referredBy != nil && *referredBy == telegramID {
		referredBy = nil
	}

	created, err := e.store.CreateAccount(ctx, telegramID, name, referredBy, e.cfg.StartingBalance)
	if err != nil {
		return false, fmt.Errorf("register: %w", err)
	}
	if !created {
		return false, nil
	}

	if referredBy != nil {
		err := e.store.CreditReferral(ctx, *referredBy, e.cfg.ReferralBonus)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			e.logger.Warn("referrer not registered, bonus skipped",
				zap.Int64("referrer_id", *referredBy),
				zap.Int64("referee_id", telegramID))
		case err != nil:
			return true, fmt.Errorf("register: credit referrer: %w", err)
		default:
			e.notify.ReferralCredited(ctx, *referredBy, e.cfg.ReferralBonus)
		}
	}
	return true, nil
}

// CreditTaskSlots adds a task-earned amount to the balance and ledger.
func (e *Engine) CreditTaskSlots(ctx context.Context, telegramID int64, amount float64) error {
	if err := e.store.CreditSlots(ctx, telegramID, amount, models.CauseTask); err != nil {
		return fmt.Errorf("credit task slots: %w", err)
	}
	return nil
}

// DeductAdminSlot removes exactly one slot, refusing rather than letting the
// balance go negative.
func (e *Engine) DeductAdminSlot(ctx context.Context, telegramID int64) error {
	ok, err := e.store.DeductAdminSlot(ctx, telegramID)
	if err != nil {
		return fmt.Errorf("deduct slot: %w", err)
	}
	if !ok {
		return ErrInsufficientSlot
	}
	return nil
}

// Stats returns the account's post counts and ledger-derived subtotals.
func (e *Engine) Stats(ctx context.Context, telegramID int64) (*models.AccountStats, error) {
	return e.store.AccountStats(ctx, telegramID)
}

// ReconcileReport compares an account's cached balances against the ledger.
type ReconcileReport struct {
	Balance         float64
	ExpectedBalance float64
	TaskDrift       float64
	ReferralDrift   float64
}

// Consistent reports whether the cached balances match the ledger within
// floating-point tolerance.
func (r ReconcileReport) Consistent() bool {
	const eps = 1e-9
	return math.Abs(r.Balance-r.ExpectedBalance) < eps &&
		math.Abs(r.TaskDrift) < eps &&
		math.Abs(r.ReferralDrift) < eps
}

// Reconcile treats the ledger as the source of truth and reports any drift of
// the cached running balance and subtotals.
func (e *Engine) Reconcile(ctx context.Context, telegramID int64) (*ReconcileReport, error) {
	account, err := e.store.GetAccount(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	sums, err := e.store.LedgerSums(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	var total float64
	for _, amount := range sums {
		total += amount
	}
	return &ReconcileReport{
		Balance:         account.Slots,
		ExpectedBalance: e.cfg.StartingBalance + total,
		TaskDrift:       account.TaskSlots - sums[models.CauseTask],
		ReferralDrift:   account.ReferralSlots - sums[models.CauseReferral],
	}, nil
}

// ───── post state machine ─────

// Submit validates eligibility and creates a pending post.
func (e *Engine) Submit(ctx context.Context, telegramID int64, link string) (*models.Post, error) {
	account, err := e.store.GetAccount(ctx, telegramID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	now := time.Now().UTC()
	if isBanned(account, now) {
		return nil, ErrBanned
	}
	if _, ok := twitter.ExtractTweetID(link); !ok {
		return nil, ErrInvalidLink
	}
	if account.LastSubmittedAt != nil && now.Sub(*account.LastSubmittedAt) < e.cfg.CooldownWindow {
		return nil, ErrCooldown
	}

	post, err := e.store.CreatePost(ctx, telegramID, link, now)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	e.notify.PostSubmitted(ctx, account.Name)
	return post, nil
}

func isBanned(account *models.Account, now time.Time) bool {
	if account.PostBanUntil != nil && account.PostBanUntil.After(now) {
		return true
	}
	if account.BanUntil != nil && account.BanUntil.After(now) {
		return true
	}
	return false
}

// Approve spends one of the owner's slots and approves the post; when the
// owner cannot pay, the post is rejected instead. The resulting status is
// returned so the admin can be told which way it went.
func (e *Engine) Approve(ctx context.Context, postID int64) (models.PostStatus, error) {
	post, err := e.store.GetPost(ctx, postID)
	if err != nil {
		return "", fmt.Errorf("approve: %w", err)
	}

	status, err := e.store.ApprovePost(ctx, postID, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("approve post %d: %w", postID, err)
	}

	switch status {
	case models.PostApproved:
		e.notify.PostApproved(ctx, post.TelegramID)
	case models.PostRejected:
		e.notify.PostRejected(ctx, post.TelegramID, "no available slots")
	}
	return status, nil
}

// Reject moves a pending post to the terminal rejected state.
func (e *Engine) Reject(ctx context.Context, postID int64) error {
	post, err := e.store.GetPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("reject: %w", err)
	}
	ok, err := e.store.TransitionPost(ctx, postID, models.PostPending, models.PostRejected, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reject post %d: %w", postID, err)
	}
	if !ok {
		return storage.ErrNotPending
	}
	e.notify.PostRejected(ctx, post.TelegramID, "rejected by admin")
	return nil
}

// PendingPosts lists posts awaiting admin review.
func (e *Engine) PendingPosts(ctx context.Context, limit int) ([]models.PendingPost, error) {
	return e.store.PendingPosts(ctx, limit)
}

// ActiveRaids lists posts approved within the engagement window.
func (e *Engine) ActiveRaids(ctx context.Context) ([]models.RaidPost, error) {
	since := time.Now().UTC().Add(-e.cfg.EngagementWindow)
	return e.store.ApprovedPostsSince(ctx, since)
}

// ───── completion & verification ─────

// CompletionResult reports how a claim was settled.
type CompletionResult struct {
	// Rewarded is true when the task reward was credited immediately.
	Rewarded bool
	// Amount is the credited reward (zero while awaiting manual confirmation).
	Amount float64
}

// Complete settles a participant's claim of having raided the post.
// Self-completion and duplicate claims are refused in both verify modes.
func (e *Engine) Complete(ctx context.Context, participantID, postID int64) (*CompletionResult, error) {
	participant, err := e.store.GetAccount(ctx, participantID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}

	post, err := e.store.GetPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	if post.TelegramID == participantID {
		return nil, ErrSelfCompletion
	}
	if post.Status != models.PostApproved {
		return nil, ErrPostNotActive
	}

	done, err := e.store.HasCompleted(ctx, participantID, postID)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	if done {
		return nil, ErrAlreadyCompleted
	}

	if e.cfg.VerifyMode == VerifyManual {
		return e.completeManual(ctx, participant, post)
	}
	return e.completeAuto(ctx, participant, post)
}

func (e *Engine) completeAuto(ctx context.Context, participant *models.Account, post *models.Post) (*CompletionResult, error) {
	if participant.TwitterAccessToken == "" {
		return nil, ErrNotLinked
	}
	tweetID, ok := twitter.ExtractTweetID(post.Link)
	if !ok {
		return nil, ErrInvalidLink
	}

	// The bridge call is the precondition of the credit: an unreachable
	// bridge denies the claim rather than assuming the like happened.
	verifyCtx, cancel := context.WithTimeout(ctx, verifierTimeout)
	defer cancel()
	liked, err := e.verifier.HasLiked(verifyCtx, participant, tweetID)
	if err != nil {
		return nil, fmt.Errorf("complete: verify like: %w", err)
	}
	if !liked {
		return nil, ErrNotLiked
	}

	created, err := e.store.CreateCompletion(ctx, participant.TelegramID, post.ID)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	if !created {
		return nil, ErrAlreadyCompleted
	}
	if err := e.store.CreditSlots(ctx, participant.TelegramID, e.cfg.TaskReward, models.CauseTask); err != nil {
		return nil, fmt.Errorf("complete: credit reward: %w", err)
	}
	return &CompletionResult{Rewarded: true, Amount: e.cfg.TaskReward}, nil
}

func (e *Engine) completeManual(ctx context.Context, participant *models.Account, post *models.Post) (*CompletionResult, error) {
	created, err := e.store.CreateCompletion(ctx, participant.TelegramID, post.ID)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	if !created {
		return nil, ErrAlreadyCompleted
	}
	if _, err := e.store.CreateVerification(ctx, post.ID, participant.TelegramID); err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	e.notify.VerificationRequested(ctx, post.TelegramID, post.ID, participant.TelegramID, participant.Name, post.Link)
	return &CompletionResult{Rewarded: false}, nil
}

// ConfirmCompletion is the post owner's confirmation of a manual claim; it
// credits the participant's reward and closes the request.
func (e *Engine) ConfirmCompletion(ctx context.Context, ownerID, postID, participantID int64) error {
	if err := e.resolveVerification(ctx, ownerID, postID, participantID, models.VerificationConfirmed); err != nil {
		return err
	}
	if err := e.store.CreditSlots(ctx, participantID, e.cfg.TaskReward, models.CauseTask); err != nil {
		return fmt.Errorf("confirm completion: credit reward: %w", err)
	}
	e.notify.CompletionRewarded(ctx, participantID, e.cfg.TaskReward)
	return nil
}

// RejectCompletion closes a manual claim with no reward.
func (e *Engine) RejectCompletion(ctx context.Context, ownerID, postID, participantID int64) error {
	return e.resolveVerification(ctx, ownerID, postID, participantID, models.VerificationRejected)
}

func (e *Engine) resolveVerification(ctx context.Context, ownerID, postID, participantID int64, to models.VerificationStatus) error {
	post, err := e.store.GetPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("resolve verification: %w", err)
	}
	if post.TelegramID != ownerID {
		return ErrNotOwner
	}
	ok, err := e.store.ResolveVerification(ctx, postID, participantID, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("resolve verification: %w", err)
	}
	if !ok {
		return ErrAlreadyResolved
	}
	return nil
}

// ───── external identity ─────

// LinkTwitter persists the OAuth result against the account. A handle already
// claimed by a different account is refused.
func (e *Engine) LinkTwitter(ctx context.Context, telegramID int64, link storage.TwitterLink) error {
	if err := e.store.SetTwitterLink(ctx, telegramID, link); err != nil {
		return fmt.Errorf("link twitter: %w", err)
	}
	return nil
}

// Account fetches the participant record.
func (e *Engine) Account(ctx context.Context, telegramID int64) (*models.Account, error) {
	return e.store.GetAccount(ctx, telegramID)
}

// Accounts lists every registered participant, for the admin export.
func (e *Engine) Accounts(ctx context.Context) ([]models.Account, error) {
	return e.store.ListAccounts(ctx)
}
