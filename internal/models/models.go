package models

import "time"

// PostStatus is the lifecycle state of a submitted post.
// Transitions: pending -> approved -> expired, pending -> rejected.
// rejected and expired are terminal.
type PostStatus string

const (
	PostPending  PostStatus = "pending"
	PostApproved PostStatus = "approved"
	PostRejected PostStatus = "rejected"
	PostExpired  PostStatus = "expired"
)

// SlotCause tags a ledger entry with the reason for the balance change.
type SlotCause string

const (
	CauseReferral SlotCause = "referral"
	CauseTask     SlotCause = "task"
	CauseAdmin    SlotCause = "admin"
)

// VerificationStatus is the state of a manual owner confirmation.
type VerificationStatus string

const (
	VerificationPending   VerificationStatus = "pending"
	VerificationConfirmed VerificationStatus = "confirmed"
	VerificationRejected  VerificationStatus = "rejected"
)

// Account is a registered bot participant, keyed by Telegram user ID.
// Slots is the running balance; TaskSlots and ReferralSlots are cached
// per-cause subtotals reconcilable against the ledger.
type Account struct {
	TelegramID    int64 `gorm:"primaryKey;autoIncrement:false"`
	Name          string
	Slots         float64 `gorm:"not null;default:0"`
	TaskSlots     float64 `gorm:"not null;default:0"`
	ReferralSlots float64 `gorm:"not null;default:0"`
	ReferredBy    *int64  `gorm:"index"`
	ReferralCount int     `gorm:"not null;default:0"`

	TwitterHandle       string `gorm:"index"`
	TwitterUserID       string
	TwitterAccessToken  string
	TwitterRefreshToken string
	TokenExpiresAt      *time.Time

	LastSubmittedAt *time.Time
	PostBanUntil    *time.Time
	BanUntil        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Post is a submitted engagement target link.
type Post struct {
	ID          int64      `gorm:"primaryKey"`
	TelegramID  int64      `gorm:"index;not null"`
	Link        string     `gorm:"not null"`
	Status      PostStatus `gorm:"index;not null;default:pending"`
	SubmittedAt time.Time
	ApprovedAt  *time.Time
}

// SlotLedgerEntry is one append-only balance change. Entries are never
// updated or deleted; the account's balance must equal the starting
// balance plus the sum of its entries.
type SlotLedgerEntry struct {
	ID         int64     `gorm:"primaryKey"`
	TelegramID int64     `gorm:"index;not null"`
	Amount     float64   `gorm:"not null"`
	Cause      SlotCause `gorm:"not null"`
	CreatedAt  time.Time
}

// CompletionRecord marks that a participant completed a post. The unique
// index enforces at most one rewarded completion per (account, post).
type CompletionRecord struct {
	ID         int64 `gorm:"primaryKey"`
	TelegramID int64 `gorm:"uniqueIndex:idx_completion_once;not null"`
	PostID     int64 `gorm:"uniqueIndex:idx_completion_once;not null"`
	CreatedAt  time.Time
}

// VerificationRequest is a manual-confirmation claim awaiting the post
// owner's confirm/reject decision.
type VerificationRequest struct {
	ID            int64              `gorm:"primaryKey"`
	PostID        int64              `gorm:"uniqueIndex:idx_verification_once;not null"`
	ParticipantID int64              `gorm:"uniqueIndex:idx_verification_once;not null"`
	Status        VerificationStatus `gorm:"index;not null;default:pending"`
	CreatedAt     time.Time
	ResolvedAt    *time.Time
}

// AccountStats is the profile summary shown to a user: post counts plus
// ledger-derived earnings by cause.
type AccountStats struct {
	ApprovedPosts int64
	RejectedPosts int64
	TaskSlots     float64
	ReferralSlots float64
}

// PendingPost is a pending post joined with its owner's name, for admin review.
type PendingPost struct {
	ID         int64
	Link       string
	OwnerName  string
	TelegramID int64
}

// RaidPost is an approved post joined with its owner's name, shown to raiders.
type RaidPost struct {
	ID        int64
	Link      string
	OwnerName string
}
