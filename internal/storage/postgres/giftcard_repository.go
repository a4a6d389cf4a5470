package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dborovsky/grandnode/internal/domain"
)

type giftCardRepository struct {
	db *sql.DB
}

// NewGiftCardRepository создаёт PostgreSQL-реализацию GiftCardRepository.
// Картами владеет каталог, поэтому репозиторий read-only.
func NewGiftCardRepository(store *Store) domain.GiftCardRepository {
	return &giftCardRepository{db: store.DB()}
}

func (r *giftCardRepository) Get(id string) (domain.GiftCard, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.queryOne(ctx, `
		SELECT id, code, amount_minor, balance_minor, valid_from, valid_to, created_at
		FROM gift_cards
		WHERE id = $1
	`, id)
}

func (r *giftCardRepository) GetByCode(code string) (domain.GiftCard, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	code = domain.NormalizeCouponCode(code)
	if code == "" {
		return domain.GiftCard{}, domain.ErrGiftCardNotFound
	}

	return r.queryOne(ctx, `
		SELECT id, code, amount_minor, balance_minor, valid_from, valid_to, created_at
		FROM gift_cards
		WHERE code = $1
	`, code)
}

func (r *giftCardRepository) queryOne(ctx context.Context, query string, arg any) (domain.GiftCard, error) {
	var (
		card      domain.GiftCard
		validFrom sql.NullTime
		validTo   sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&card.ID, &card.Code, &card.AmountMinor, &card.BalanceMinor,
		&validFrom, &validTo, &card.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.GiftCard{}, domain.ErrGiftCardNotFound
		}
		return domain.GiftCard{}, fmt.Errorf("select gift card: %w", err)
	}

	if validFrom.Valid {
		card.ValidFrom = validFrom.Time.UTC()
	}
	if validTo.Valid {
		card.ValidTo = validTo.Time.UTC()
	}

	usage, err := r.loadUsage(ctx, card.ID)
	if err != nil {
		return domain.GiftCard{}, err
	}
	card.Usage = usage

	return card, nil
}

func (r *giftCardRepository) loadUsage(ctx context.Context, giftCardID string) ([]domain.GiftCardUsage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, amount_minor, used_at
		FROM gift_card_usage
		WHERE gift_card_id = $1
		ORDER BY used_at ASC, id ASC
	`, giftCardID)
	if err != nil {
		return nil, fmt.Errorf("load gift card usage: %w", err)
	}
	defer rows.Close()

	usage := make([]domain.GiftCardUsage, 0)
	for rows.Next() {
		var u domain.GiftCardUsage
		if err := rows.Scan(&u.ID, &u.OrderID, &u.AmountMinor, &u.UsedAt); err != nil {
			return nil, fmt.Errorf("scan gift card usage: %w", err)
		}
		usage = append(usage, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gift card usage: %w", err)
	}

	return usage, nil
}

var _ domain.GiftCardRepository = (*giftCardRepository)(nil)
