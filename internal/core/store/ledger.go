package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pricewise/pricewise/internal/core"
)

// EnsureProfile creates a profile with a zero balance if it is missing and
// refreshes the email when one is given.
func (s *Store) EnsureProfile(ctx context.Context, userID, email string) error {
	if s == nil || s.DB == nil {
		return errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("user id is required")
	}

	_, err := s.DB.ExecContext(ctx, s.q(`
		INSERT INTO profiles (id, email, credits, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = CASE WHEN excluded.email = '' THEN profiles.email ELSE excluded.email END
	`), userID, strings.TrimSpace(email), time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}
	return nil
}

// GetProfile returns a profile, or nil when it does not exist.
func (s *Store) GetProfile(ctx context.Context, userID string) (*core.Profile, error) {
	if s == nil || s.DB == nil {
		return nil, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		profile   core.Profile
		updatedAt int64
	)
	err := s.DB.QueryRowContext(ctx, s.q(`
		SELECT id, email, credits, updated_at FROM profiles WHERE id = ?
	`), userID).Scan(&profile.ID, &profile.Email, &profile.Credits, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	profile.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &profile, nil
}

// ReadBalance returns the credit balance of a user.
func (s *Store) ReadBalance(ctx context.Context, userID string) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return readBalance(ctx, s.DB, s.q(`SELECT credits FROM profiles WHERE id = ?`), userID)
}

// WriteBalance overwrites the credit balance of a user.
func (s *Store) WriteBalance(ctx context.Context, userID string, credits int) error {
	if s == nil || s.DB == nil {
		return errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := s.DB.ExecContext(ctx, s.q(`
		UPDATE profiles SET credits = ?, updated_at = ? WHERE id = ?
	`), credits, time.Now().UTC().Unix(), userID)
	if err != nil {
		return fmt.Errorf("write balance: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return core.ErrProfileNotFound
	}
	return nil
}

// AppendPurchase records a purchase. A repeated payment id returns
// core.ErrAlreadyApplied.
func (s *Store) AppendPurchase(ctx context.Context, purchase core.Purchase) error {
	if s == nil || s.DB == nil {
		return errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return insertPurchase(ctx, s.DB, s.q(insertPurchaseQuery), purchase)
}

// ApplyCredit records the purchase and adds its credits to the balance in
// one transaction. The unique payment id makes the mutation happen at most
// once per payment.
func (s *Store) ApplyCredit(ctx context.Context, mutation core.LedgerMutation) (core.LedgerResult, error) {
	if s == nil || s.DB == nil {
		return core.LedgerResult{}, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(mutation.UserID) == "" || strings.TrimSpace(mutation.PaymentID) == "" {
		return core.LedgerResult{}, errors.New("user id and payment id are required")
	}
	if mutation.Credits <= 0 {
		return core.LedgerResult{}, errors.New("credits must be positive")
	}
	at := mutation.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return core.LedgerResult{}, fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	err = insertPurchase(ctx, tx, s.q(insertPurchaseQuery), core.Purchase{
		UserID:           mutation.UserID,
		CreditsPurchased: mutation.Credits,
		AmountPaidCents:  mutation.AmountCents,
		Currency:         mutation.Currency,
		PaymentID:        mutation.PaymentID,
		PurchaseDate:     at,
	})
	if err != nil {
		return core.LedgerResult{}, err
	}

	// The increment is evaluated by the database so concurrent credits for
	// other payments are not lost. The balance is read back under the row
	// lock the update holds.
	res, err := tx.ExecContext(ctx, s.q(`
		UPDATE profiles SET credits = credits + ?, updated_at = ? WHERE id = ?
	`), mutation.Credits, at.UTC().Unix(), mutation.UserID)
	if err != nil {
		return core.LedgerResult{}, fmt.Errorf("update balance: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return core.LedgerResult{}, fmt.Errorf("update balance: %w", err)
	} else if affected == 0 {
		return core.LedgerResult{}, core.ErrProfileNotFound
	}

	balance, err := readBalance(ctx, tx, s.q(`SELECT credits FROM profiles WHERE id = ?`), mutation.UserID)
	if err != nil {
		return core.LedgerResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.LedgerResult{}, fmt.Errorf("commit ledger transaction: %w", err)
	}

	return core.LedgerResult{
		UserID:     mutation.UserID,
		OldBalance: balance - mutation.Credits,
		NewBalance: balance,
		Credits:    mutation.Credits,
		PaymentID:  mutation.PaymentID,
	}, nil
}

// ConsumeCredit takes one credit from a user's balance for one consultation.
// The decrement only happens when the balance covers it, so concurrent
// consumers can never drive it below zero. A zero balance returns
// core.ErrInsufficientCredits.
func (s *Store) ConsumeCredit(ctx context.Context, userID string) (core.LedgerResult, error) {
	if s == nil || s.DB == nil {
		return core.LedgerResult{}, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return core.LedgerResult{}, errors.New("user id is required")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return core.LedgerResult{}, fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, s.q(`
		UPDATE profiles SET credits = credits - 1, updated_at = ?
		WHERE id = ? AND credits >= 1
	`), time.Now().UTC().Unix(), userID)
	if err != nil {
		return core.LedgerResult{}, fmt.Errorf("consume credit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.LedgerResult{}, fmt.Errorf("consume credit: %w", err)
	}

	balanceQuery := s.q(`SELECT credits FROM profiles WHERE id = ?`)
	if affected == 0 {
		// Either the profile is missing or its balance is empty.
		if _, err := readBalance(ctx, tx, balanceQuery, userID); err != nil {
			return core.LedgerResult{}, err
		}
		return core.LedgerResult{}, core.ErrInsufficientCredits
	}

	balance, err := readBalance(ctx, tx, balanceQuery, userID)
	if err != nil {
		return core.LedgerResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.LedgerResult{}, fmt.Errorf("commit ledger transaction: %w", err)
	}

	return core.LedgerResult{
		UserID:     userID,
		OldBalance: balance + 1,
		NewBalance: balance,
		Credits:    -1,
	}, nil
}

// GetPurchaseByPaymentID returns the purchase for a payment, or nil.
func (s *Store) GetPurchaseByPaymentID(ctx context.Context, paymentID string) (*core.Purchase, error) {
	if s == nil || s.DB == nil {
		return nil, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	row := s.DB.QueryRowContext(ctx, s.q(selectPurchaseColumns+` WHERE payment_id = ?`), paymentID)
	purchase, err := scanPurchase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch purchase: %w", err)
	}
	return purchase, nil
}

// ListPurchases returns a user's purchases, newest first.
func (s *Store) ListPurchases(ctx context.Context, userID string, limit int) ([]core.Purchase, error) {
	if s == nil || s.DB == nil {
		return nil, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.DB.QueryContext(ctx, s.q(selectPurchaseColumns+`
		WHERE user_id = ?
		ORDER BY purchase_date DESC, id DESC
		LIMIT ?
	`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var purchases []core.Purchase
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		purchases = append(purchases, *purchase)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return purchases, nil
}

const insertPurchaseQuery = `
	INSERT INTO credit_purchases (user_id, credits_purchased, amount_paid_cents, currency, payment_id, purchase_date)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(payment_id) DO NOTHING
`

const selectPurchaseColumns = `
	SELECT id, user_id, credits_purchased, amount_paid_cents, currency, payment_id, purchase_date
	FROM credit_purchases
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func insertPurchase(ctx context.Context, db execer, query string, purchase core.Purchase) error {
	currency := strings.ToUpper(strings.TrimSpace(purchase.Currency))
	if currency == "" {
		currency = "USD"
	}
	date := purchase.PurchaseDate
	if date.IsZero() {
		date = time.Now().UTC()
	}

	res, err := db.ExecContext(ctx, query,
		purchase.UserID,
		purchase.CreditsPurchased,
		purchase.AmountPaidCents,
		currency,
		purchase.PaymentID,
		date.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record purchase: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record purchase: %w", err)
	}
	if affected == 0 {
		return core.ErrAlreadyApplied
	}
	return nil
}

func readBalance(ctx context.Context, db queryRower, query string, userID string) (int, error) {
	var credits int
	err := db.QueryRowContext(ctx, query, userID).Scan(&credits)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrProfileNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return credits, nil
}

func scanPurchase(row scanner) (*core.Purchase, error) {
	var (
		purchase     core.Purchase
		purchaseDate int64
	)
	if err := row.Scan(
		&purchase.ID,
		&purchase.UserID,
		&purchase.CreditsPurchased,
		&purchase.AmountPaidCents,
		&purchase.Currency,
		&purchase.PaymentID,
		&purchaseDate,
	); err != nil {
		return nil, err
	}
	purchase.PurchaseDate = time.Unix(purchaseDate, 0).UTC()
	return &purchase, nil
}
