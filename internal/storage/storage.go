package storage

import (
	"context"
	"errors"
	"time"

	"raidbot/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrHandleTaken is returned when a Twitter handle is already linked to a
// different account.
var ErrHandleTaken = errors.New("twitter handle already linked to another account")

// ErrNotPending is returned when an approval or rejection targets a post that
// has already left the pending state.
var ErrNotPending = errors.New("post is not pending")

// TwitterLink is the external identity persisted against an account after a
// successful OAuth exchange.
type TwitterLink struct {
	Handle       string
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// StaleVerification is a pending verification request left unresolved on an
// expired post, joined with the post owner.
type StaleVerification struct {
	RequestID     int64
	PostID        int64
	ParticipantID int64
	OwnerID       int64
}

// Storage defines the persistence contracts of the raid economy. Every
// multi-step mutation (balance credit plus ledger append, conditional status
// transition) is atomic inside the implementation; callers never do split
// read-then-write sequences.
type Storage interface {
	// Account operations
	CreateAccount(ctx context.Context, telegramID int64, name string, referredBy *int64, startingSlots float64) (created bool, err error)
	GetAccount(ctx context.Context, telegramID int64) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)

	// CreditSlots adds amount to the balance, the matching cause subtotal,
	// and appends a ledger entry, in one transaction.
	CreditSlots(ctx context.Context, telegramID int64, amount float64, cause models.SlotCause) error

	// CreditReferral credits the referrer's balance and referral subtotal,
	// increments the direct-referral counter, and appends a ledger entry.
	CreditReferral(ctx context.Context, referrerID int64, amount float64) error

	// DeductAdminSlot atomically removes exactly 1.0 slot when the balance
	// covers it, appending a negative ledger entry. Returns false (and
	// mutates nothing) when the balance is insufficient.
	DeductAdminSlot(ctx context.Context, telegramID int64) (bool, error)

	SetTwitterLink(ctx context.Context, telegramID int64, link TwitterLink) error
	SetBans(ctx context.Context, telegramID int64, postBanUntil, banUntil time.Time) error

	// LedgerSums returns the per-cause sums of the account's ledger entries.
	LedgerSums(ctx context.Context, telegramID int64) (map[models.SlotCause]float64, error)
	AccountStats(ctx context.Context, telegramID int64) (*models.AccountStats, error)

	// Post operations
	// CreatePost inserts a pending post and stamps the owner's
	// last-submission time in the same transaction.
	CreatePost(ctx context.Context, telegramID int64, link string, now time.Time) (*models.Post, error)
	GetPost(ctx context.Context, id int64) (*models.Post, error)
	PendingPosts(ctx context.Context, limit int) ([]models.PendingPost, error)
	PendingPostsBefore(ctx context.Context, cutoff time.Time) ([]models.Post, error)
	ApprovedPostsSince(ctx context.Context, since time.Time) ([]models.RaidPost, error)

	// ApprovePost claims a pending post and spends one of the owner's slots
	// in a single transaction: the post becomes approved when the deduction
	// succeeds and rejected when the balance is insufficient. Returns
	// ErrNotPending when the post already left the pending state.
	ApprovePost(ctx context.Context, id int64, now time.Time) (models.PostStatus, error)

	// TransitionPost moves a post from one status to another with a single
	// conditional update; it reports false when the post was not in the
	// expected prior status. approved_at is stamped on transition to approved.
	TransitionPost(ctx context.Context, id int64, from, to models.PostStatus, now time.Time) (bool, error)

	// ExpireApprovedBefore bulk-expires approved posts whose approval is
	// older than the cutoff, returning the number of rows changed.
	ExpireApprovedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Completion operations
	HasCompleted(ctx context.Context, telegramID, postID int64) (bool, error)
	// CreateCompletion inserts the (account, post) record, reporting false
	// when one already exists.
	CreateCompletion(ctx context.Context, telegramID, postID int64) (bool, error)

	// Verification operations (manual-confirmation mode)
	CreateVerification(ctx context.Context, postID, participantID int64) (bool, error)
	// ResolveVerification conditionally moves a pending request to the given
	// terminal status, reporting false when it was already resolved.
	ResolveVerification(ctx context.Context, postID, participantID int64, to models.VerificationStatus, now time.Time) (bool, error)
	// StaleVerifications lists pending requests on expired posts approved
	// before the cutoff, for the unresponsive-owner sanction sweep.
	StaleVerifications(ctx context.Context, approvedBefore time.Time) ([]StaleVerification, error)

	// Lifecycle
	Close() error
}
