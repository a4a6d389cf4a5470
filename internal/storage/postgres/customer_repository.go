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

type customerRepository struct {
	db *sql.DB
}

// NewCustomerRepository создаёт PostgreSQL-реализацию CustomerRepository.
func NewCustomerRepository(store *Store) domain.CustomerRepository {
	return &customerRepository{db: store.DB()}
}

func (r *customerRepository) Create(customer domain.Customer) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if customer.Version == 0 {
		customer.Version = 1
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO customers (
			id, email, registered, gift_balance_minor, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		customer.ID, customer.Email, customer.Registered,
		customer.GiftBalanceMinor, customer.Version, customer.CreatedAt, customer.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}

	if err = r.replaceChildren(ctx, tx, customer); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create customer: %w", err)
	}

	return nil
}

func (r *customerRepository) Get(id string) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var customer domain.Customer
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, registered, gift_balance_minor, version, created_at, updated_at
		FROM customers
		WHERE id = $1
	`, id).Scan(
		&customer.ID, &customer.Email, &customer.Registered,
		&customer.GiftBalanceMinor, &customer.Version, &customer.CreatedAt, &customer.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, domain.ErrCustomerNotFound
		}
		return domain.Customer{}, fmt.Errorf("select customer: %w", err)
	}

	addresses, err := r.loadAddresses(ctx, customer.ID)
	if err != nil {
		return domain.Customer{}, err
	}
	customer.Addresses = addresses

	giftCards, err := r.loadGiftCards(ctx, customer.ID)
	if err != nil {
		return domain.Customer{}, err
	}
	customer.GiftCards = giftCards

	return customer, nil
}

// Save применяет изменения с optimistic locking: UPDATE срабатывает
// только при совпадении version, вложенные строки перезаписываются
// в той же транзакции.
func (r *customerRepository) Save(customer domain.Customer) error {
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

	res, err := tx.ExecContext(ctx, `
		UPDATE customers
		SET email = $1,
		    registered = $2,
		    gift_balance_minor = $3,
		    version = version + 1,
		    updated_at = $4
		WHERE id = $5
		  AND version = $6
	`,
		customer.Email,
		customer.Registered,
		customer.GiftBalanceMinor,
		customer.UpdatedAt,
		customer.ID,
		customer.Version,
	)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, checkErr := r.customerExistsTx(ctx, tx, customer.ID)
		if checkErr != nil {
			err = checkErr
			return err
		}
		if !exists {
			err = domain.ErrCustomerNotFound
			return err
		}
		err = domain.ErrCustomerVersionConflict
		return err
	}

	if err = r.replaceChildren(ctx, tx, customer); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save customer: %w", err)
	}

	return nil
}

func (r *customerRepository) replaceChildren(ctx context.Context, tx *sql.Tx, customer domain.Customer) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM customer_addresses WHERE customer_id = $1`, customer.ID); err != nil {
		return fmt.Errorf("clear customer addresses: %w", err)
	}
	for i, addr := range customer.Addresses {
		addrID := addr.ID
		if addrID == "" {
			addrID = uuid.NewString()
		}
		attrs, err := json.Marshal(addressAttributesToJSON(addr.Attributes))
		if err != nil {
			return fmt.Errorf("marshal address attributes: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO customer_addresses (id, customer_id, attributes, position, created_at)
			VALUES ($1,$2,$3,$4,$5)
		`, addrID, customer.ID, attrs, i, addr.CreatedAt); err != nil {
			return fmt.Errorf("insert customer address: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM customer_gift_cards WHERE customer_id = $1`, customer.ID); err != nil {
		return fmt.Errorf("clear customer gift cards: %w", err)
	}
	for i, applied := range customer.GiftCards {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO customer_gift_cards (customer_id, gift_card_id, code, amount_minor, applied_at, position)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, customer.ID, applied.GiftCardID, applied.Code, applied.AmountMinor, applied.AppliedAt, i); err != nil {
			return fmt.Errorf("insert applied gift card: %w", err)
		}
	}

	return nil
}

func (r *customerRepository) loadAddresses(ctx context.Context, customerID string) ([]domain.Address, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, attributes, created_at
		FROM customer_addresses
		WHERE customer_id = $1
		ORDER BY position ASC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("load customer addresses: %w", err)
	}
	defer rows.Close()

	addresses := make([]domain.Address, 0)
	for rows.Next() {
		var (
			addr     domain.Address
			attrsRaw []byte
		)
		if err := rows.Scan(&addr.ID, &attrsRaw, &addr.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan customer address: %w", err)
		}
		attrs, err := addressAttributesFromJSON(attrsRaw)
		if err != nil {
			return nil, fmt.Errorf("decode address attributes: %w", err)
		}
		addr.Attributes = attrs
		addresses = append(addresses, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customer addresses: %w", err)
	}

	return addresses, nil
}

func (r *customerRepository) loadGiftCards(ctx context.Context, customerID string) ([]domain.AppliedGiftCard, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT gift_card_id, code, amount_minor, applied_at
		FROM customer_gift_cards
		WHERE customer_id = $1
		ORDER BY position ASC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("load applied gift cards: %w", err)
	}
	defer rows.Close()

	giftCards := make([]domain.AppliedGiftCard, 0)
	for rows.Next() {
		var applied domain.AppliedGiftCard
		if err := rows.Scan(&applied.GiftCardID, &applied.Code, &applied.AmountMinor, &applied.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan applied gift card: %w", err)
		}
		giftCards = append(giftCards, applied)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied gift cards: %w", err)
	}

	return giftCards, nil
}

func (r *customerRepository) customerExistsTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var found string
	err := tx.QueryRowContext(ctx, `SELECT id FROM customers WHERE id = $1`, id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check customer exists: %w", err)
}

// addressAttributeJSON — представление атрибута адреса в JSONB-колонке.
type addressAttributeJSON struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func addressAttributesToJSON(attrs []domain.AddressAttribute) []addressAttributeJSON {
	result := make([]addressAttributeJSON, 0, len(attrs))
	for _, attr := range attrs {
		result = append(result, addressAttributeJSON{Key: attr.Key, Value: attr.Value})
	}
	return result
}

func addressAttributesFromJSON(raw []byte) ([]domain.AddressAttribute, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var decoded []addressAttributeJSON
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	if len(decoded) == 0 {
		return nil, nil
	}
	attrs := make([]domain.AddressAttribute, 0, len(decoded))
	for _, attr := range decoded {
		attrs = append(attrs, domain.AddressAttribute{Key: attr.Key, Value: attr.Value})
	}
	return attrs, nil
}

var _ domain.CustomerRepository = (*customerRepository)(nil)
