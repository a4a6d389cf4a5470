package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/dborovsky/grandnode/internal/domain"
)

const (
	defaultTTL       = 5 * time.Minute
	defaultOpTimeout = 500 * time.Millisecond

	keyByIDPrefix   = "grandnode:giftcard:id:"
	keyByCodePrefix = "grandnode:giftcard:code:"
)

// Open подключается к Redis и проверяет доступность.
func Open(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// GiftCardCache — кеширующий декоратор над GiftCardRepository.
// Каталог карт живёт в другой подсистеме, поэтому чтения горячих кодов
// купонов кешируются с коротким TTL. Ошибки кеша не фатальны: запрос
// уходит во внутренний репозиторий.
type GiftCardCache struct {
	inner  domain.GiftCardRepository
	client *redis.Client
	ttl    time.Duration
	logger *log.Entry
}

// NewGiftCardCache оборачивает репозиторий карт Redis-кешем.
// ttl <= 0 заменяется значением по умолчанию.
func NewGiftCardCache(inner domain.GiftCardRepository, client *redis.Client, ttl time.Duration) *GiftCardCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &GiftCardCache{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: log.WithField("component", "giftcard-cache"),
	}
}

func (c *GiftCardCache) Get(id string) (domain.GiftCard, error) {
	if card, ok := c.lookup(keyByIDPrefix + id); ok {
		return card, nil
	}

	card, err := c.inner.Get(id)
	if err != nil {
		return domain.GiftCard{}, err
	}
	c.store(card)

	return card, nil
}

func (c *GiftCardCache) GetByCode(code string) (domain.GiftCard, error) {
	code = domain.NormalizeCouponCode(code)
	if code == "" {
		return domain.GiftCard{}, domain.ErrGiftCardNotFound
	}

	if card, ok := c.lookup(keyByCodePrefix + code); ok {
		return card, nil
	}

	card, err := c.inner.GetByCode(code)
	if err != nil {
		return domain.GiftCard{}, err
	}
	c.store(card)

	return card, nil
}

// Invalidate убирает карту из кеша; вызывается после движения средств,
// чтобы следующее чтение увидело свежий остаток.
func (c *GiftCardCache) Invalidate(card domain.GiftCard) {
	if c.client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	keys := []string{keyByIDPrefix + card.ID}
	if card.Code != "" {
		keys = append(keys, keyByCodePrefix+card.Code)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.WithError(err).WithField("gift_card_id", card.ID).Warn("failed to invalidate gift card cache")
	}
}

func (c *GiftCardCache) lookup(key string) (domain.GiftCard, bool) {
	if c.client == nil {
		return domain.GiftCard{}, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("key", key).Warn("gift card cache read failed")
		}
		return domain.GiftCard{}, false
	}

	var cached giftCardJSON
	if err := json.Unmarshal(raw, &cached); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("gift card cache entry is corrupted")
		return domain.GiftCard{}, false
	}

	return cached.toDomain(), true
}

func (c *GiftCardCache) store(card domain.GiftCard) {
	if c.client == nil {
		return
	}

	raw, err := json.Marshal(giftCardToJSON(card))
	if err != nil {
		c.logger.WithError(err).WithField("gift_card_id", card.ID).Warn("failed to marshal gift card for cache")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	pipe := c.client.Pipeline()
	pipe.Set(ctx, keyByIDPrefix+card.ID, raw, c.ttl)
	if card.Code != "" {
		pipe.Set(ctx, keyByCodePrefix+card.Code, raw, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.WithError(err).WithField("gift_card_id", card.ID).Warn("gift card cache write failed")
	}
}

type giftCardUsageJSON struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	AmountMinor int64     `json:"amount_minor"`
	UsedAt      time.Time `json:"used_at"`
}

type giftCardJSON struct {
	ID           string              `json:"id"`
	Code         string              `json:"code"`
	AmountMinor  int64               `json:"amount_minor"`
	BalanceMinor int64               `json:"balance_minor"`
	ValidFrom    time.Time           `json:"valid_from,omitzero"`
	ValidTo      time.Time           `json:"valid_to,omitzero"`
	Usage        []giftCardUsageJSON `json:"usage,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

func giftCardToJSON(card domain.GiftCard) giftCardJSON {
	usage := make([]giftCardUsageJSON, 0, len(card.Usage))
	for _, u := range card.Usage {
		usage = append(usage, giftCardUsageJSON(u))
	}
	return giftCardJSON{
		ID:           card.ID,
		Code:         card.Code,
		AmountMinor:  card.AmountMinor,
		BalanceMinor: card.BalanceMinor,
		ValidFrom:    card.ValidFrom,
		ValidTo:      card.ValidTo,
		Usage:        usage,
		CreatedAt:    card.CreatedAt,
	}
}

func (j giftCardJSON) toDomain() domain.GiftCard {
	var usage []domain.GiftCardUsage
	if len(j.Usage) > 0 {
		usage = make([]domain.GiftCardUsage, 0, len(j.Usage))
		for _, u := range j.Usage {
			usage = append(usage, domain.GiftCardUsage(u))
		}
	}
	return domain.GiftCard{
		ID:           j.ID,
		Code:         j.Code,
		AmountMinor:  j.AmountMinor,
		BalanceMinor: j.BalanceMinor,
		ValidFrom:    j.ValidFrom,
		ValidTo:      j.ValidTo,
		Usage:        usage,
		CreatedAt:    j.CreatedAt,
	}
}

var _ domain.GiftCardRepository = (*GiftCardCache)(nil)
