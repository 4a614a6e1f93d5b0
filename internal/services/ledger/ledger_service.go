package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/revaspay/loyalty/internal/apperrors"
	"github.com/revaspay/loyalty/internal/metrics"
	"github.com/revaspay/loyalty/internal/models"
	"github.com/revaspay/loyalty/internal/services/tier"
)

// MaxIdempotencyKeyLength bounds stored idempotency keys, prefixes included
const MaxIdempotencyKeyLength = 150

// Entry is a request to append one transaction to an account's ledger
type Entry struct {
	AccountID      uuid.UUID
	Type           models.TransactionType
	Points         int64 // signed delta
	Description    string
	Reference      string
	IdempotencyKey string
	MetaData       map[string]interface{}
}

// Result is the outcome of recording an entry
type Result struct {
	Transaction *models.Transaction
	Account     models.Account
	// Replayed is set when the idempotency key matched an earlier entry
	Replayed   bool
	TierChange *TierChange
}

// TierChange is reported after commit when an entry moves an account across a tier boundary
type TierChange struct {
	AccountID      uuid.UUID
	From           string
	To             string
	Upgrade        bool
	LifetimePoints int64
}

// TierChangeNotifier receives tier changes after the ledger entry has committed
type TierChangeNotifier interface {
	TierChanged(ctx context.Context, change TierChange)
}

// Summary is the read model exposed as the account summary
type Summary struct {
	AccountID       uuid.UUID    `json:"account_id"`
	AvailablePoints int64        `json:"available_points"`
	LifetimePoints  int64        `json:"lifetime_points"`
	CurrentTier     models.Tier  `json:"current_tier"`
	NextTier        *models.Tier `json:"next_tier"`
	ProgressPercent float64      `json:"progress_percent"`
	PointsToNext    int64        `json:"points_to_next"`
}

// LedgerService owns the points ledger and the balances projected from it.
// It is the only component that writes loyalty_accounts or point_transactions.
type LedgerService struct {
	db       *gorm.DB
	tiers    *tier.Table
	expiry   time.Duration
	notifier TierChangeNotifier
	now      func() time.Time
}

// Option configures a LedgerService
type Option func(*LedgerService)

// WithExpiryDays makes earn and bonus credits expire after days (0 disables expiry)
func WithExpiryDays(days int) Option {
	return func(s *LedgerService) {
		if days > 0 {
			s.expiry = time.Duration(days) * 24 * time.Hour
		}
	}
}

// WithNotifier sets the receiver of tier changes
func WithNotifier(n TierChangeNotifier) Option {
	return func(s *LedgerService) {
		s.notifier = n
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) {
		s.now = now
	}
}

// NewLedgerService creates a new ledger service
func NewLedgerService(db *gorm.DB, tiers *tier.Table, opts ...Option) *LedgerService {
	s := &LedgerService{
		db:    db,
		tiers: tiers,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tiers returns the tier table the ledger resolves against
func (s *LedgerService) Tiers() *tier.Table {
	return s.tiers
}

// Now returns the ledger clock's current time
func (s *LedgerService) Now() time.Time {
	return s.now().UTC()
}

// RecordTransaction appends entry and updates the account balances as one atomic unit
func (s *LedgerService) RecordTransaction(ctx context.Context, entry Entry) (*models.Transaction, error) {
	var result *Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.RecordWithTx(tx, entry)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Committed(ctx, result)
	return result.Transaction, nil
}

// Committed publishes the side effects of a result once its transaction has committed
func (s *LedgerService) Committed(ctx context.Context, result *Result) {
	if result == nil || result.Replayed {
		return
	}
	txn := result.Transaction
	metrics.LedgerTransactions.WithLabelValues(string(txn.Type)).Inc()
	points := txn.Points
	if points < 0 {
		points = -points
	}
	metrics.LedgerPoints.WithLabelValues(string(txn.Type)).Add(float64(points))

	change := result.TierChange
	if change == nil {
		return
	}
	log.Printf("Account %s moved from tier %s to %s at %d lifetime points", change.AccountID, change.From, change.To, change.LifetimePoints)
	metrics.TierChanges.WithLabelValues(change.To).Inc()
	if s.notifier != nil {
		s.notifier.TierChanged(ctx, *change)
	}
}

// LockAccount returns the account row locked for update, creating it on first use.
// It must run inside a transaction.
func (s *LedgerService) LockAccount(tx *gorm.DB, accountID uuid.UUID) (*models.Account, error) {
	if accountID == uuid.Nil {
		return nil, apperrors.Validation("account id is required")
	}

	var account models.Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&account, "id = ?", accountID).Error
	if err == nil {
		return &account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Transient(err, "error locking account")
	}

	account = models.Account{
		ID:          accountID,
		CurrentTier: s.tiers.Base().Level,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&account).Error; err != nil {
		return nil, apperrors.Transient(err, "error creating account")
	}
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&account, "id = ?", accountID).Error; err != nil {
		return nil, apperrors.Transient(err, "error locking account")
	}
	return &account, nil
}

// FindByIdempotencyKey returns the entry previously recorded under key, or nil
func (s *LedgerService) FindByIdempotencyKey(tx *gorm.DB, accountID uuid.UUID, key string) (*models.Transaction, error) {
	if key == "" {
		return nil, nil
	}
	var existing models.Transaction
	err := tx.Where("account_id = ? AND idempotency_key = ?", accountID, key).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, apperrors.Transient(err, "error checking idempotency key")
}

// RecordWithTx appends entry using an existing transaction. Callers composing a
// larger atomic unit must call Committed with the result after their commit.
func (s *LedgerService) RecordWithTx(tx *gorm.DB, entry Entry) (*Result, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}

	account, err := s.LockAccount(tx, entry.AccountID)
	if err != nil {
		return nil, err
	}

	existing, err := s.FindByIdempotencyKey(tx, entry.AccountID, entry.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &Result{Transaction: existing, Account: *account, Replayed: true}, nil
	}

	if !entry.Type.IsCredit() && -entry.Points > account.AvailablePoints {
		return nil, apperrors.Wrap(apperrors.ErrInsufficientPoints,
			"insufficient points: %d required, %d available", -entry.Points, account.AvailablePoints)
	}

	previousTier := s.tiers.Resolve(account.LifetimePoints).Level
	now := s.Now()

	account.AvailablePoints += entry.Points
	if entry.Type.CountsTowardLifetime() {
		account.LifetimePoints += entry.Points
	}
	account.TransactionCount++
	account.CurrentTier = s.tiers.Resolve(account.LifetimePoints).Level
	account.UpdatedAt = now

	if err := tx.Model(&models.Account{}).Where("id = ?", account.ID).Updates(map[string]interface{}{
		"available_points":  account.AvailablePoints,
		"lifetime_points":   account.LifetimePoints,
		"current_tier":      account.CurrentTier,
		"transaction_count": account.TransactionCount,
		"updated_at":        account.UpdatedAt,
	}).Error; err != nil {
		return nil, apperrors.Transient(err, "error updating account balance")
	}

	transaction := models.Transaction{
		AccountID:     account.ID,
		Sequence:      account.TransactionCount,
		Type:          entry.Type,
		Points:        entry.Points,
		BalanceAfter:  account.AvailablePoints,
		LifetimeAfter: account.LifetimePoints,
		Description:   entry.Description,
		Reference:     entry.Reference,
		MetaData:      entry.MetaData,
		CreatedAt:     now,
	}
	if entry.IdempotencyKey != "" {
		key := entry.IdempotencyKey
		transaction.IdempotencyKey = &key
	}
	if s.expiry > 0 && entry.Type.CountsTowardLifetime() {
		expiresAt := now.Add(s.expiry)
		transaction.ExpiresAt = &expiresAt
	}

	if err := tx.Create(&transaction).Error; err != nil {
		return nil, apperrors.Transient(err, "error creating transaction record")
	}

	result := &Result{Transaction: &transaction, Account: *account}
	if previousTier != account.CurrentTier {
		from, _ := s.tiers.Index(previousTier)
		to, _ := s.tiers.Index(account.CurrentTier)
		result.TierChange = &TierChange{
			AccountID:      account.ID,
			From:           previousTier,
			To:             account.CurrentTier,
			Upgrade:        to > from,
			LifetimePoints: account.LifetimePoints,
		}
	}
	return result, nil
}

func validateEntry(entry Entry) error {
	if entry.AccountID == uuid.Nil {
		return apperrors.Validation("account id is required")
	}
	if !entry.Type.Valid() {
		return apperrors.Validation("unknown transaction type %q", string(entry.Type))
	}
	if entry.Points == 0 {
		return apperrors.Wrap(apperrors.ErrInvalidAmount, "transaction points must be non-zero")
	}
	if entry.Type.IsCredit() && entry.Points < 0 {
		return apperrors.Wrap(apperrors.ErrInvalidAmount, "%s transactions require a positive amount", entry.Type)
	}
	if !entry.Type.IsCredit() && entry.Points > 0 {
		return apperrors.Wrap(apperrors.ErrInvalidAmount, "%s transactions require a negative amount", entry.Type)
	}
	if len(entry.IdempotencyKey) > MaxIdempotencyKeyLength {
		return apperrors.Validation("idempotency key longer than %d characters", MaxIdempotencyKeyLength)
	}
	return nil
}

// GetAccount returns the stored account
func (s *LedgerService) GetAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	var account models.Account
	err := s.db.WithContext(ctx).First(&account, "id = ?", accountID).Error
	if err == nil {
		return &account, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrAccountNotFound
	}
	return nil, apperrors.Transient(err, "error finding account")
}

// GetAccountSummary returns balances and tier progress.
// Accounts that have never transacted read as an empty base-tier account.
func (s *LedgerService) GetAccountSummary(ctx context.Context, accountID uuid.UUID) (*Summary, error) {
	if accountID == uuid.Nil {
		return nil, apperrors.Validation("account id is required")
	}

	account, err := s.GetAccount(ctx, accountID)
	if errors.Is(err, apperrors.ErrAccountNotFound) {
		account = &models.Account{ID: accountID}
	} else if err != nil {
		return nil, err
	}

	progress := s.tiers.Progress(account.LifetimePoints)
	return &Summary{
		AccountID:       account.ID,
		AvailablePoints: account.AvailablePoints,
		LifetimePoints:  account.LifetimePoints,
		CurrentTier:     progress.Current,
		NextTier:        progress.Next,
		ProgressPercent: progress.ProgressPercent,
		PointsToNext:    progress.PointsToNext,
	}, nil
}

// GetTransactionHistory returns one page of an account's ledger, newest first
func (s *LedgerService) GetTransactionHistory(ctx context.Context, accountID uuid.UUID, page, pageSize int) ([]models.Transaction, int64, error) {
	if page < 1 {
		return nil, 0, apperrors.Validation("page must be at least 1")
	}
	if pageSize < 1 || pageSize > 100 {
		return nil, 0, apperrors.Validation("page size must be between 1 and 100")
	}

	var transactions []models.Transaction
	var total int64

	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Transaction{}).Where("account_id = ?", accountID).Count(&total).Error; err != nil {
		return nil, 0, apperrors.Transient(err, "error counting transactions")
	}

	offset := (page - 1) * pageSize
	if err := db.Where("account_id = ?", accountID).Order("sequence DESC").Offset(offset).Limit(pageSize).Find(&transactions).Error; err != nil {
		return nil, 0, apperrors.Transient(err, "error finding transactions")
	}

	return transactions, total, nil
}

// AuditReport compares an account's projection with its ledger
type AuditReport struct {
	AccountID        uuid.UUID `json:"account_id"`
	AvailablePoints  int64     `json:"available_points"`
	LedgerAvailable  int64     `json:"ledger_available"`
	LifetimePoints   int64     `json:"lifetime_points"`
	LedgerLifetime   int64     `json:"ledger_lifetime"`
	TransactionCount int64     `json:"transaction_count"`
	LedgerEntries    int64     `json:"ledger_entries"`
	CachedTier       string    `json:"cached_tier"`
	ResolvedTier     string    `json:"resolved_tier"`
	Consistent       bool      `json:"consistent"`
}

type ledgerTotals struct {
	Available int64
	Lifetime  int64
	Entries   int64
}

// Audit recomputes the balances from the ledger and reports any drift
func (s *LedgerService) Audit(ctx context.Context, accountID uuid.UUID) (*AuditReport, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var totals ledgerTotals
	err = s.db.WithContext(ctx).Model(&models.Transaction{}).
		Select("COALESCE(SUM(points), 0) AS available, "+
			"COALESCE(SUM(CASE WHEN type IN (?, ?) THEN points ELSE 0 END), 0) AS lifetime, "+
			"COUNT(*) AS entries", models.TransactionEarn, models.TransactionBonus).
		Where("account_id = ?", accountID).
		Scan(&totals).Error
	if err != nil {
		return nil, apperrors.Transient(err, "error summing ledger")
	}

	report := &AuditReport{
		AccountID:        account.ID,
		AvailablePoints:  account.AvailablePoints,
		LedgerAvailable:  totals.Available,
		LifetimePoints:   account.LifetimePoints,
		LedgerLifetime:   totals.Lifetime,
		TransactionCount: account.TransactionCount,
		LedgerEntries:    totals.Entries,
		CachedTier:       account.CurrentTier,
		ResolvedTier:     s.tiers.Resolve(totals.Lifetime).Level,
	}
	report.Consistent = report.AvailablePoints == report.LedgerAvailable &&
		report.LifetimePoints == report.LedgerLifetime &&
		report.TransactionCount == report.LedgerEntries &&
		report.CachedTier == report.ResolvedTier
	if !report.Consistent {
		log.Printf("Ledger drift on account %s: %+v", accountID, *report)
	}
	return report, nil
}

// ExpirySummary reports what a sweep expired
type ExpirySummary struct {
	Accounts      int   `json:"accounts"`
	PointsExpired int64 `json:"points_expired"`
}

// ExpireDue expires credits whose expiry has passed.
// Debits are treated as consuming the oldest credits first and a refund hands its
// credits back, so an account loses max(0, expired credits - net debits so far),
// never more than it has available.
func (s *LedgerService) ExpireDue(ctx context.Context, now time.Time) (*ExpirySummary, error) {
	var accountIDs []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("type IN ? AND expires_at IS NOT NULL AND expires_at <= ?", lifetimeTypes(), now).
		Distinct().
		Pluck("account_id", &accountIDs).Error
	if err != nil {
		return nil, apperrors.Transient(err, "error finding accounts with expiring points")
	}

	summary := &ExpirySummary{}
	for _, accountID := range accountIDs {
		expired, err := s.expireAccount(ctx, accountID, now)
		if err != nil {
			log.Printf("Error expiring points for account %s: %v", accountID, err)
			continue
		}
		if expired > 0 {
			summary.Accounts++
			summary.PointsExpired += expired
		}
	}
	return summary, nil
}

func (s *LedgerService) expireAccount(ctx context.Context, accountID uuid.UUID, now time.Time) (int64, error) {
	var result *Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.LockAccount(tx, accountID)
		if err != nil {
			return err
		}

		var expiredCredits, debits int64
		if err := tx.Model(&models.Transaction{}).
			Select("COALESCE(SUM(points), 0)").
			Where("account_id = ? AND type IN ? AND expires_at IS NOT NULL AND expires_at <= ?", accountID, lifetimeTypes(), now).
			Scan(&expiredCredits).Error; err != nil {
			return apperrors.Transient(err, "error summing expired credits")
		}
		if err := tx.Model(&models.Transaction{}).
			Select("COALESCE(-SUM(points), 0)").
			Where("account_id = ? AND type IN ?", accountID, []models.TransactionType{
				models.TransactionRedeem, models.TransactionExpire, models.TransactionRefund,
			}).
			Scan(&debits).Error; err != nil {
			return apperrors.Transient(err, "error summing debits")
		}

		due := expiredCredits - debits
		if due > account.AvailablePoints {
			due = account.AvailablePoints
		}
		if due <= 0 {
			return nil
		}

		result, err = s.RecordWithTx(tx, Entry{
			AccountID:   accountID,
			Type:        models.TransactionExpire,
			Points:      -due,
			Description: "Points expired",
			MetaData: map[string]interface{}{
				"expired_through": now.Format(time.RFC3339),
			},
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("error expiring points: %w", err)
	}
	if result == nil {
		return 0, nil
	}

	s.Committed(ctx, result)
	return -result.Transaction.Points, nil
}

func lifetimeTypes() []models.TransactionType {
	return []models.TransactionType{models.TransactionEarn, models.TransactionBonus}
}
