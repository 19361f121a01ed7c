package engine

import "errors"

// Eligibility and validation failures reported back to the requester. None of
// them leaves any state behind.
var (
	ErrNotRegistered    = errors.New("account not registered")
	ErrBanned           = errors.New("account is banned from posting")
	ErrInvalidLink      = errors.New("link is not a recognized post URL")
	ErrCooldown         = errors.New("submission cooldown is still active")
	ErrInsufficientSlot = errors.New("insufficient slot balance")
	ErrPostNotActive    = errors.New("post is not open for completion")
	ErrSelfCompletion   = errors.New("cannot complete your own post")
	ErrAlreadyCompleted = errors.New("post already completed")
	ErrNotLinked        = errors.New("no twitter account linked")
	ErrNotLiked         = errors.New("like not detected")
	ErrNotOwner         = errors.New("not the post owner")
	ErrAlreadyResolved  = errors.New("verification already resolved")
)
