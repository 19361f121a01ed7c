package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"raidbot/internal/models"
	"raidbot/internal/storage"
)

// DB is the GORM-backed implementation of storage.Storage.
type DB struct {
	db *gorm.DB
}

// New opens a PostgreSQL connection from the given DSN.
func New(dsn string) (*DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &DB{db: db}, nil
}

// NewWithDB wraps an existing GORM handle. Tests use this with an in-memory
// sqlite database running the same queries.
func NewWithDB(db *gorm.DB) *DB {
	return &DB{db: db}
}

// Migrate creates the schema through GORM. Production deployments run the
// goose migrations instead; this covers tests and first-run dev setups.
func (d *DB) Migrate() error {
	return d.db.AutoMigrate(
		&models.Account{},
		&models.Post{},
		&models.SlotLedgerEntry{},
		&models.CompletionRecord{},
		&models.VerificationRequest{},
	)
}

func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ───── accounts ─────

func (d *DB) CreateAccount(ctx context.Context, telegramID int64, name string, referredBy *int64, startingSlots float64) (bool, error) {
	account := models.Account{
		TelegramID: telegramID,
		Name:       name,
		Slots:      startingSlots,
		ReferredBy: referredBy,
	}
	res := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&account)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create account: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (d *DB) GetAccount(ctx context.Context, telegramID int64) (*models.Account, error) {
	var account models.Account
	err := d.db.WithContext(ctx).First(&account, "telegram_id = ?", telegramID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (d *DB) ListAccounts(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	if err := d.db.WithContext(ctx).Order("telegram_id").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

var subtotalColumn = map[models.SlotCause]string{
	models.CauseTask:     "task_slots",
	models.CauseReferral: "referral_slots",
}

func (d *DB) CreditSlots(ctx context.Context, telegramID int64, amount float64, cause models.SlotCause) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"slots": gorm.Expr("slots + ?", amount),
		}
		if col, ok := subtotalColumn[cause]; ok {
			updates[col] = gorm.Expr(col+" + ?", amount)
		}
		res := tx.Model(&models.Account{}).
			Where("telegram_id = ?", telegramID).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to credit slots: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		return appendLedger(tx, telegramID, amount, cause)
	})
}

func (d *DB) CreditReferral(ctx context.Context, referrerID int64, amount float64) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Account{}).
			Where("telegram_id = ?", referrerID).
			Updates(map[string]interface{}{
				"slots":          gorm.Expr("slots + ?", amount),
				"referral_slots": gorm.Expr("referral_slots + ?", amount),
				"referral_count": gorm.Expr("referral_count + 1"),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to credit referral: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		return appendLedger(tx, referrerID, amount, models.CauseReferral)
	})
}

// DeductAdminSlot is the only subtracting mutation. The balance guard and the
// subtraction are a single conditional UPDATE so two concurrent approvals
// cannot both spend the same slot.
func (d *DB) DeductAdminSlot(ctx context.Context, telegramID int64) (bool, error) {
	deducted := false
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Account{}).
			Where("telegram_id = ? AND slots >= 1", telegramID).
			Update("slots", gorm.Expr("slots - 1"))
		if res.Error != nil {
			return fmt.Errorf("failed to deduct slot: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deducted = true
		return appendLedger(tx, telegramID, -1.0, models.CauseAdmin)
	})
	return deducted, err
}

func appendLedger(tx *gorm.DB, telegramID int64, amount float64, cause models.SlotCause) error {
	entry := models.SlotLedgerEntry{
		TelegramID: telegramID,
		Amount:     amount,
		Cause:      cause,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (d *DB) SetTwitterLink(ctx context.Context, telegramID int64, link storage.TwitterLink) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		err := tx.Model(&models.Account{}).
			Where("twitter_handle = ? AND telegram_id != ?", link.Handle, telegramID).
			Count(&taken).Error
		if err != nil {
			return fmt.Errorf("failed to check twitter handle: %w", err)
		}
		if taken > 0 {
			return storage.ErrHandleTaken
		}
		res := tx.Model(&models.Account{}).
			Where("telegram_id = ?", telegramID).
			Updates(map[string]interface{}{
				"twitter_handle":        link.Handle,
				"twitter_user_id":       link.UserID,
				"twitter_access_token":  link.AccessToken,
				"twitter_refresh_token": link.RefreshToken,
				"token_expires_at":      link.ExpiresAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to set twitter link: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

func (d *DB) SetBans(ctx context.Context, telegramID int64, postBanUntil, banUntil time.Time) error {
	res := d.db.WithContext(ctx).Model(&models.Account{}).
		Where("telegram_id = ?", telegramID).
		Updates(map[string]interface{}{
			"post_ban_until": postBanUntil,
			"ban_until":      banUntil,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to set bans: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (d *DB) LedgerSums(ctx context.Context, telegramID int64) (map[models.SlotCause]float64, error) {
	var rows []struct {
		Cause models.SlotCause
		Total float64
	}
	err := d.db.WithContext(ctx).Model(&models.SlotLedgerEntry{}).
		Select("cause, SUM(amount) AS total").
		Where("telegram_id = ?", telegramID).
		Group("cause").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum ledger: %w", err)
	}
	sums := make(map[models.SlotCause]float64, len(rows))
	for _, row := range rows {
		sums[row.Cause] = row.Total
	}
	return sums, nil
}

func (d *DB) AccountStats(ctx context.Context, telegramID int64) (*models.AccountStats, error) {
	stats := &models.AccountStats{}

	err := d.db.WithContext(ctx).Model(&models.Post{}).
		Where("telegram_id = ? AND status = ?", telegramID, models.PostApproved).
		Count(&stats.ApprovedPosts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count approved posts: %w", err)
	}

	err = d.db.WithContext(ctx).Model(&models.Post{}).
		Where("telegram_id = ? AND status = ?", telegramID, models.PostRejected).
		Count(&stats.RejectedPosts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count rejected posts: %w", err)
	}

	sums, err := d.LedgerSums(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	stats.TaskSlots = sums[models.CauseTask]
	stats.ReferralSlots = sums[models.CauseReferral]
	return stats, nil
}

// ───── posts ─────

func (d *DB) CreatePost(ctx context.Context, telegramID int64, link string, now time.Time) (*models.Post, error) {
	post := &models.Post{
		TelegramID:  telegramID,
		Link:        link,
		Status:      models.PostPending,
		SubmittedAt: now,
	}
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return fmt.Errorf("failed to create post: %w", err)
		}
		res := tx.Model(&models.Account{}).
			Where("telegram_id = ?", telegramID).
			Update("last_submitted_at", now)
		if res.Error != nil {
			return fmt.Errorf("failed to stamp last submission: %w", res.Error)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (d *DB) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	var post models.Post
	err := d.db.WithContext(ctx).First(&post, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return &post, nil
}

func (d *DB) PendingPosts(ctx context.Context, limit int) ([]models.PendingPost, error) {
	var posts []models.PendingPost
	err := d.db.WithContext(ctx).Model(&models.Post{}).
		Select("posts.id, posts.link, posts.telegram_id, accounts.name AS owner_name").
		Joins("JOIN accounts ON accounts.telegram_id = posts.telegram_id").
		Where("posts.status = ?", models.PostPending).
		Order("posts.submitted_at ASC").
		Limit(limit).
		Scan(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending posts: %w", err)
	}
	return posts, nil
}

func (d *DB) PendingPostsBefore(ctx context.Context, cutoff time.Time) ([]models.Post, error) {
	var posts []models.Post
	err := d.db.WithContext(ctx).
		Where("status = ? AND submitted_at <= ?", models.PostPending, cutoff).
		Order("submitted_at ASC").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale pending posts: %w", err)
	}
	return posts, nil
}

func (d *DB) ApprovedPostsSince(ctx context.Context, since time.Time) ([]models.RaidPost, error) {
	var posts []models.RaidPost
	err := d.db.WithContext(ctx).Model(&models.Post{}).
		Select("posts.id, posts.link, accounts.name AS owner_name").
		Joins("JOIN accounts ON accounts.telegram_id = posts.telegram_id").
		Where("posts.status = ? AND posts.approved_at >= ?", models.PostApproved, since).
		Order("posts.submitted_at DESC").
		Scan(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list approved posts: %w", err)
	}
	return posts, nil
}

// ApprovePost claims the pending post first, then pays for it, all inside one
// transaction. Claiming via a conditional update means two admins approving
// the same post concurrently cannot both deduct a slot.
func (d *DB) ApprovePost(ctx context.Context, id int64, now time.Time) (models.PostStatus, error) {
	var outcome models.PostStatus
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.First(&post, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return storage.ErrNotFound
			}
			return fmt.Errorf("failed to load post %d: %w", id, err)
		}

		claim := tx.Model(&models.Post{}).
			Where("id = ? AND status = ?", id, models.PostPending).
			Updates(map[string]interface{}{
				"status":      models.PostApproved,
				"approved_at": now,
			})
		if claim.Error != nil {
			return fmt.Errorf("failed to claim post %d: %w", id, claim.Error)
		}
		if claim.RowsAffected == 0 {
			return storage.ErrNotPending
		}

		deduct := tx.Model(&models.Account{}).
			Where("telegram_id = ? AND slots >= 1", post.TelegramID).
			Update("slots", gorm.Expr("slots - 1"))
		if deduct.Error != nil {
			return fmt.Errorf("failed to deduct slot: %w", deduct.Error)
		}
		if deduct.RowsAffected == 0 {
			// Insufficient balance: the post is rejected instead.
			res := tx.Model(&models.Post{}).
				Where("id = ?", id).
				Updates(map[string]interface{}{
					"status":      models.PostRejected,
					"approved_at": nil,
				})
			if res.Error != nil {
				return fmt.Errorf("failed to reject post %d: %w", id, res.Error)
			}
			outcome = models.PostRejected
			return nil
		}

		if err := appendLedger(tx, post.TelegramID, -1.0, models.CauseAdmin); err != nil {
			return err
		}
		outcome = models.PostApproved
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (d *DB) TransitionPost(ctx context.Context, id int64, from, to models.PostStatus, now time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if to == models.PostApproved {
		updates["approved_at"] = now
	}
	res := d.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to transition post %d: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (d *DB) ExpireApprovedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := d.db.WithContext(ctx).Model(&models.Post{}).
		Where("status = ? AND approved_at IS NOT NULL AND approved_at <= ?", models.PostApproved, cutoff).
		Update("status", models.PostExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to expire posts: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ───── completions ─────

func (d *DB) HasCompleted(ctx context.Context, telegramID, postID int64) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&models.CompletionRecord{}).
		Where("telegram_id = ? AND post_id = ?", telegramID, postID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check completion: %w", err)
	}
	return count > 0, nil
}

func (d *DB) CreateCompletion(ctx context.Context, telegramID, postID int64) (bool, error) {
	record := models.CompletionRecord{
		TelegramID: telegramID,
		PostID:     postID,
	}
	res := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create completion: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ───── verifications ─────

func (d *DB) CreateVerification(ctx context.Context, postID, participantID int64) (bool, error) {
	request := models.VerificationRequest{
		PostID:        postID,
		ParticipantID: participantID,
		Status:        models.VerificationPending,
	}
	res := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&request)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create verification request: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (d *DB) ResolveVerification(ctx context.Context, postID, participantID int64, to models.VerificationStatus, now time.Time) (bool, error) {
	res := d.db.WithContext(ctx).Model(&models.VerificationRequest{}).
		Where("post_id = ? AND participant_id = ? AND status = ?", postID, participantID, models.VerificationPending).
		Updates(map[string]interface{}{
			"status":      to,
			"resolved_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to resolve verification: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (d *DB) StaleVerifications(ctx context.Context, approvedBefore time.Time) ([]storage.StaleVerification, error) {
	var stale []storage.StaleVerification
	err := d.db.WithContext(ctx).Model(&models.VerificationRequest{}).
		Select("verification_requests.id AS request_id, verification_requests.post_id, verification_requests.participant_id, posts.telegram_id AS owner_id").
		Joins("JOIN posts ON posts.id = verification_requests.post_id").
		Where("verification_requests.status = ? AND posts.status = ? AND posts.approved_at <= ?",
			models.VerificationPending, models.PostExpired, approvedBefore).
		Scan(&stale).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale verifications: %w", err)
	}
	return stale, nil
}
