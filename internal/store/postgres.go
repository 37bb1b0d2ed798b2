package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"payment-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresStore is a PaymentStore backed by Postgres. The compare-and-swap
// write is a single UPDATE guarded by the version column, so no row lock
// is held across the reconciler's read-compare-write sequence.
type PostgresStore struct {
	db *sqlx.DB
}

// paymentRow flattens the payment for scanning; the signature history is
// stored as a JSONB column.
type paymentRow struct {
	ID                string    `db:"id"`
	Status            string    `db:"status"`
	Amount            string    `db:"amount"`
	Currency          string    `db:"currency"`
	PaymentMethod     string    `db:"payment_method"`
	Bank              string    `db:"bank"`
	CustomerEmail     string    `db:"customer_email"`
	CustomerName      string    `db:"customer_name"`
	CustomerDocument  string    `db:"customer_document"`
	RedirectURL       string    `db:"redirect_url"`
	CreationKey       string    `db:"creation_key"`
	CreatedAt         time.Time `db:"created_at"`
	LastEventAt       time.Time `db:"last_event_at"`
	AppliedEventCount int       `db:"applied_event_count"`
	SeenSignatures    []byte    `db:"seen_signatures"`
	Version           int64     `db:"version"`
}

// NewPostgresStore connects to Postgres and verifies the connection.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	row, err := toRow(p)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payments (
			id, status, amount, currency, payment_method, bank,
			customer_email, customer_name, customer_document,
			redirect_url, creation_key, created_at, last_event_at,
			applied_event_count, seen_signatures, version
		) VALUES (
			:id, :status, :amount, :currency, :payment_method, :bank,
			:customer_email, :customer_name, :customer_document,
			:redirect_url, :creation_key, :created_at, :last_event_at,
			:applied_event_count, :seen_signatures, :version
		) ON CONFLICT (id) DO NOTHING`

	res, err := s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *PostgresStore) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	var row paymentRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM payments WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRow(&row)
}

func (s *PostgresStore) UpdatePayment(ctx context.Context, p *models.Payment, expectedVersion int64) error {
	sigs, err := json.Marshal(p.SeenSignatures)
	if err != nil {
		return fmt.Errorf("failed to marshal signatures: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, last_event_at = $2, applied_event_count = $3,
		    seen_signatures = $4, version = version + 1
		WHERE id = $5 AND version = $6`,
		p.Status, p.LastEventAt, p.AppliedEventCount, sigs, p.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		if err := s.db.GetContext(ctx, &exists,
			"SELECT EXISTS(SELECT 1 FROM payments WHERE id = $1)", p.ID); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	p.Version = expectedVersion + 1
	return nil
}

func (s *PostgresStore) DeletePayment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM payments WHERE id = $1", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteAllPayments(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "TRUNCATE payments")
	return err
}

func (s *PostgresStore) CountPayments(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM payments")
	return count, err
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func toRow(p *models.Payment) (*paymentRow, error) {
	sigs, err := json.Marshal(p.SeenSignatures)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signatures: %w", err)
	}
	return &paymentRow{
		ID:                p.ID,
		Status:            p.Status,
		Amount:            p.Amount,
		Currency:          p.Currency,
		PaymentMethod:     p.PaymentMethod,
		Bank:              p.Bank,
		CustomerEmail:     p.Customer.Email,
		CustomerName:      p.Customer.Name,
		CustomerDocument:  p.Customer.Document,
		RedirectURL:       p.RedirectURL,
		CreationKey:       p.CreationKey,
		CreatedAt:         p.CreatedAt,
		LastEventAt:       p.LastEventAt,
		AppliedEventCount: p.AppliedEventCount,
		SeenSignatures:    sigs,
		Version:           p.Version,
	}, nil
}

func fromRow(row *paymentRow) (*models.Payment, error) {
	var sigs []models.EventSignature
	if len(row.SeenSignatures) > 0 {
		if err := json.Unmarshal(row.SeenSignatures, &sigs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal signatures: %w", err)
		}
	}
	return &models.Payment{
		ID:            row.ID,
		Status:        row.Status,
		Amount:        row.Amount,
		Currency:      row.Currency,
		PaymentMethod: row.PaymentMethod,
		Bank:          row.Bank,
		Customer: models.Customer{
			Email:    row.CustomerEmail,
			Name:     row.CustomerName,
			Document: row.CustomerDocument,
		},
		RedirectURL:       row.RedirectURL,
		CreationKey:       row.CreationKey,
		CreatedAt:         row.CreatedAt,
		LastEventAt:       row.LastEventAt,
		AppliedEventCount: row.AppliedEventCount,
		SeenSignatures:    sigs,
		Version:           row.Version,
	}, nil
}
