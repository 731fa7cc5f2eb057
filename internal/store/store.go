package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"FlowBackend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound       = errors.New("order not found")
	ErrDuplicateOrder = errors.New("duplicate order")
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO orders (
			id, created_at, email, commerce_order, flow_token, status
		) VALUES ($1,$2,$3,$4,$5,$6)
	`,
		order.ID,
		order.CreatedAt,
		order.Email,
		order.CommerceOrder,
		order.FlowToken,
		order.Status,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateOrder
		}
		return err
	}
	return nil
}

func (s *Store) GetByFlowToken(ctx context.Context, flowToken string) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, created_at, email, commerce_order, flow_token,
			status, download_token, paid_at
		FROM orders WHERE flow_token=$1
	`, flowToken)
	return scanOrder(row)
}

func (s *Store) GetByDownloadToken(ctx context.Context, downloadToken string) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, created_at, email, commerce_order, flow_token,
			status, download_token, paid_at
		FROM orders WHERE download_token=$1
	`, downloadToken)
	return scanOrder(row)
}

// MarkPaidIfUnpaid performs the single allowed state transition as one
// conditional statement: the WHERE clause both checks and claims the order,
// so concurrent or redelivered confirmations race on the database row and
// exactly one of them observes applied=true. Callers must not decompose
// this into a read followed by a write.
func (s *Store) MarkPaidIfUnpaid(ctx context.Context, flowToken, downloadToken string) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET status=$2, download_token=$3, paid_at=$4
		WHERE flow_token=$1 AND status <> $2 AND download_token IS NULL
	`, flowToken, models.OrderPaid, downloadToken, time.Now().UTC())
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var order models.Order
	var downloadToken sql.NullString
	var paidAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.CreatedAt,
		&order.Email,
		&order.CommerceOrder,
		&order.FlowToken,
		&order.Status,
		&downloadToken,
		&paidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if downloadToken.Valid {
		order.DownloadToken = &downloadToken.String
	}
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	return &order, nil
}
