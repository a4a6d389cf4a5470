package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dborovsky/grandnode/internal/domain"
)

type returnRequestRepository struct {
	db *sql.DB
}

// NewReturnRequestRepository создаёт PostgreSQL-реализацию ReturnRequestRepository.
func NewReturnRequestRepository(store *Store) domain.ReturnRequestRepository {
	return &returnRequestRepository{db: store.DB()}
}

// Create присваивает заявке следующий номер из последовательности и
// сохраняет её в одной транзакции. Частичный уникальный индекс по
// открытым заявкам превращает гонку двух подач по одному заказу в
// ErrReturnRequestAlreadyOpen; номер, выданный проигравшему, сгорает.
func (r *returnRequestRepository) Create(rr domain.ReturnRequest) (domain.ReturnRequest, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if rr.ID == "" {
		rr.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ReturnRequest{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = tx.QueryRowContext(ctx, `SELECT nextval('return_number_seq')`).Scan(&rr.ReturnNumber); err != nil {
		return domain.ReturnRequest{}, fmt.Errorf("next return number: %w", err)
	}

	attrs, err := json.Marshal(addressAttributesToJSON(rr.PickupAddress.Attributes))
	if err != nil {
		return domain.ReturnRequest{}, fmt.Errorf("marshal pickup address attributes: %w", err)
	}

	var addrCreatedAt any
	if !rr.PickupAddress.CreatedAt.IsZero() {
		addrCreatedAt = rr.PickupAddress.CreatedAt
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO return_requests (
			id, return_number, customer_id, order_id, comments, pickup_date,
			pickup_address_id, pickup_address_attributes, pickup_address_created_at,
			status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		rr.ID, rr.ReturnNumber, rr.CustomerID, rr.OrderID, rr.Comments, rr.PickupDate,
		rr.PickupAddress.ID, attrs, addrCreatedAt,
		string(rr.Status), rr.CreatedAt, rr.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ReturnRequest{}, domain.ErrReturnRequestAlreadyOpen
		}
		return domain.ReturnRequest{}, fmt.Errorf("insert return request: %w", err)
	}

	if err = r.insertItemsTx(ctx, tx, rr); err != nil {
		return domain.ReturnRequest{}, err
	}

	if err = tx.Commit(); err != nil {
		return domain.ReturnRequest{}, fmt.Errorf("commit create return request: %w", err)
	}

	return rr, nil
}

func (r *returnRequestRepository) Get(id string) (domain.ReturnRequest, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rr, err := r.queryOne(ctx, `
		SELECT id, return_number, customer_id, order_id, comments, pickup_date,
		       pickup_address_id, pickup_address_attributes, pickup_address_created_at,
		       status, created_at, updated_at
		FROM return_requests
		WHERE id = $1
	`, id)
	if err != nil {
		return domain.ReturnRequest{}, err
	}
	return rr, nil
}

func (r *returnRequestRepository) GetOpenByOrder(orderID string) (domain.ReturnRequest, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rr, err := r.queryOne(ctx, `
		SELECT id, return_number, customer_id, order_id, comments, pickup_date,
		       pickup_address_id, pickup_address_attributes, pickup_address_created_at,
		       status, created_at, updated_at
		FROM return_requests
		WHERE order_id = $1
		  AND status IN ('pending', 'processing')
	`, orderID)
	if err != nil {
		return domain.ReturnRequest{}, err
	}
	return rr, nil
}

func (r *returnRequestRepository) ListByCustomer(customerID string, limit int) ([]domain.ReturnRequest, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT id, return_number, customer_id, order_id, comments, pickup_date,
		       pickup_address_id, pickup_address_attributes, pickup_address_created_at,
		       status, created_at, updated_at
		FROM return_requests
		WHERE customer_id = $1
		ORDER BY created_at DESC, return_number DESC
	`

	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", customerID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list return requests: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ReturnRequest, 0)
	for rows.Next() {
		rr, err := r.scanReturnRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan return request row: %w", err)
		}

		items, err := r.loadItems(ctx, rr.ID)
		if err != nil {
			return nil, err
		}
		rr.Items = items
		result = append(result, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate return request rows: %w", err)
	}

	return result, nil
}

// Save перезаписывает существующую заявку (смена статуса бэк-офисом).
func (r *returnRequestRepository) Save(rr domain.ReturnRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	attrs, err := json.Marshal(addressAttributesToJSON(rr.PickupAddress.Attributes))
	if err != nil {
		return fmt.Errorf("marshal pickup address attributes: %w", err)
	}

	var addrCreatedAt any
	if !rr.PickupAddress.CreatedAt.IsZero() {
		addrCreatedAt = rr.PickupAddress.CreatedAt
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE return_requests
		SET comments = $1,
		    pickup_date = $2,
		    pickup_address_id = $3,
		    pickup_address_attributes = $4,
		    pickup_address_created_at = $5,
		    status = $6,
		    updated_at = $7
		WHERE id = $8
	`,
		rr.Comments, rr.PickupDate,
		rr.PickupAddress.ID, attrs, addrCreatedAt,
		string(rr.Status), rr.UpdatedAt, rr.ID,
	)
	if err != nil {
		return fmt.Errorf("update return request: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		err = domain.ErrReturnRequestNotFound
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM return_items WHERE return_request_id = $1`, rr.ID); err != nil {
		return fmt.Errorf("clear return items: %w", err)
	}
	if err = r.insertItemsTx(ctx, tx, rr); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save return request: %w", err)
	}

	return nil
}

func (r *returnRequestRepository) insertItemsTx(ctx context.Context, tx *sql.Tx, rr domain.ReturnRequest) error {
	for i, item := range rr.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO return_items (return_request_id, order_item_id, qty, reason, requested_action, position)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, rr.ID, item.OrderItemID, item.Qty, item.Reason, item.RequestedAction, i); err != nil {
			return fmt.Errorf("insert return item: %w", err)
		}
	}
	return nil
}

func (r *returnRequestRepository) queryOne(ctx context.Context, query string, arg any) (domain.ReturnRequest, error) {
	rr, err := r.scanReturnRequest(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ReturnRequest{}, domain.ErrReturnRequestNotFound
		}
		return domain.ReturnRequest{}, fmt.Errorf("select return request: %w", err)
	}

	items, err := r.loadItems(ctx, rr.ID)
	if err != nil {
		return domain.ReturnRequest{}, err
	}
	rr.Items = items

	return rr, nil
}

func (r *returnRequestRepository) scanReturnRequest(row rowScanner) (domain.ReturnRequest, error) {
	var (
		rr            domain.ReturnRequest
		status        string
		pickupDate    sql.NullTime
		attrsRaw      []byte
		addrCreatedAt sql.NullTime
	)

	if err := row.Scan(
		&rr.ID, &rr.ReturnNumber, &rr.CustomerID, &rr.OrderID, &rr.Comments, &pickupDate,
		&rr.PickupAddress.ID, &attrsRaw, &addrCreatedAt,
		&status, &rr.CreatedAt, &rr.UpdatedAt,
	); err != nil {
		return domain.ReturnRequest{}, err
	}

	rr.Status = domain.ReturnStatus(status)
	if pickupDate.Valid {
		date := pickupDate.Time.UTC()
		rr.PickupDate = &date
	}
	if addrCreatedAt.Valid {
		rr.PickupAddress.CreatedAt = addrCreatedAt.Time.UTC()
	}

	attrs, err := addressAttributesFromJSON(attrsRaw)
	if err != nil {
		return domain.ReturnRequest{}, fmt.Errorf("decode pickup address attributes: %w", err)
	}
	rr.PickupAddress.Attributes = attrs

	return rr, nil
}

func (r *returnRequestRepository) loadItems(ctx context.Context, returnRequestID string) ([]domain.ReturnItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_item_id, qty, reason, requested_action
		FROM return_items
		WHERE return_request_id = $1
		ORDER BY position ASC
	`, returnRequestID)
	if err != nil {
		return nil, fmt.Errorf("load return items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.ReturnItem, 0)
	for rows.Next() {
		var item domain.ReturnItem
		if err := rows.Scan(&item.OrderItemID, &item.Qty, &item.Reason, &item.RequestedAction); err != nil {
			return nil, fmt.Errorf("scan return item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate return items: %w", err)
	}

	return items, nil
}

var _ domain.ReturnRequestRepository = (*returnRequestRepository)(nil)
