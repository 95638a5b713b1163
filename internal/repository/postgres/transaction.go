package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/service/billing"
)

const transactionColumns = `id, subscriber_id, provider, provider_ref, tier, amount_minor, currency, status, created_at, updated_at`

// TransactionRepo implements billing.Repository against PostgreSQL.
type TransactionRepo struct{ db *sql.DB }

// NewTransactionRepo creates a Postgres-backed transaction repository.
func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := row.Scan(&tx.ID, &tx.SubscriberID, &tx.Provider, &tx.ProviderRef, &tx.Tier,
		&tx.AmountMinor, &tx.Currency, &tx.Status, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepo) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, billing.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (r *TransactionRepo) GetByRef(ctx context.Context, provider domain.PaymentProvider, ref string) (*domain.Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE provider = $1 AND provider_ref = $2`,
		string(provider), ref))
	if err == sql.ErrNoRows {
		return nil, billing.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction by ref: %w", err)
	}
	return tx, nil
}

func (r *TransactionRepo) Create(ctx context.Context, tx *domain.Transaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions
			(id, subscriber_id, provider, provider_ref, tier, amount_minor, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, tx.ID, tx.SubscriberID, string(tx.Provider), tx.ProviderRef, string(tx.Tier),
		tx.AmountMinor, tx.Currency, string(tx.Status), tx.CreatedAt, tx.UpdatedAt)
	if isUniqueViolation(err) {
		return billing.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepo) Transition(ctx context.Context, id string, from, to domain.TransactionStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("transition transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	ok, err := rowExists(ctx, r.db, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, id)
	if err != nil {
		return fmt.Errorf("transition transaction: %w", err)
	}
	if !ok {
		return billing.ErrNotFound
	}
	return billing.ErrInvalidTransition
}

func (r *TransactionRepo) ListBySubscriber(ctx context.Context, subscriberID string) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE subscriber_id = $1 ORDER BY created_at DESC`,
		subscriberID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}
