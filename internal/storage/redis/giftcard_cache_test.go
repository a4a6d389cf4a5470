package redis

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dborovsky/grandnode/internal/domain"
)

type stubGiftCardRepo struct {
	cards map[string]domain.GiftCard
	calls int
}

func (s *stubGiftCardRepo) Get(id string) (domain.GiftCard, error) {
	s.calls++
	if card, ok := s.cards[id]; ok {
		return card, nil
	}
	return domain.GiftCard{}, domain.ErrGiftCardNotFound
}

func (s *stubGiftCardRepo) GetByCode(code string) (domain.GiftCard, error) {
	s.calls++
	code = domain.NormalizeCouponCode(code)
	for _, card := range s.cards {
		if card.Code == code {
			return card, nil
		}
	}
	return domain.GiftCard{}, domain.ErrGiftCardNotFound
}

func sampleCard() domain.GiftCard {
	now := time.Now().UTC().Round(time.Second)
	return domain.GiftCard{
		ID:           "gc-1",
		Code:         "SAVE10",
		AmountMinor:  1000,
		BalanceMinor: 600,
		ValidTo:      now.Add(24 * time.Hour),
		Usage: []domain.GiftCardUsage{
			{ID: "usage-1", OrderID: "order-1", AmountMinor: 400, UsedAt: now.Add(-time.Hour)},
		},
		CreatedAt: now,
	}
}

// Без клиента кеш прозрачно делегирует внутреннему репозиторию.
func TestGiftCardCache_NilClientPassthrough(t *testing.T) {
	t.Parallel()

	inner := &stubGiftCardRepo{cards: map[string]domain.GiftCard{"gc-1": sampleCard()}}
	cache := NewGiftCardCache(inner, nil, time.Minute)

	card, err := cache.Get("gc-1")
	if err != nil {
		t.Fatalf("get through cache: %v", err)
	}
	if card.Code != "SAVE10" {
		t.Fatalf("unexpected card: %+v", card)
	}

	if _, err := cache.GetByCode("  save10 "); err != nil {
		t.Fatalf("get by code through cache: %v", err)
	}
	if _, err := cache.GetByCode("   "); !errors.Is(err, domain.ErrGiftCardNotFound) {
		t.Fatalf("expected ErrGiftCardNotFound for blank code, got %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 inner calls, got %d", inner.calls)
	}

	// Invalidate без клиента не должен паниковать.
	cache.Invalidate(card)
}

func TestGiftCardJSON_Roundtrip(t *testing.T) {
	t.Parallel()

	src := sampleCard()
	got := giftCardToJSON(src).toDomain()

	if got.ID != src.ID || got.Code != src.Code || got.BalanceMinor != src.BalanceMinor {
		t.Fatalf("unexpected roundtrip result: %+v", got)
	}
	if !got.ValidTo.Equal(src.ValidTo) {
		t.Fatalf("valid_to mismatch: %v vs %v", got.ValidTo, src.ValidTo)
	}
	if len(got.Usage) != 1 || got.Usage[0].AmountMinor != 400 {
		t.Fatalf("unexpected usage after roundtrip: %+v", got.Usage)
	}
	if got.ConsumedMinor() != src.ConsumedMinor() {
		t.Fatalf("consumed mismatch: %d vs %d", got.ConsumedMinor(), src.ConsumedMinor())
	}
}

func TestGiftCardCache_RedisFlow(t *testing.T) {
	client := openRedisForIntegrationTest(t)

	inner := &stubGiftCardRepo{cards: map[string]domain.GiftCard{"gc-1": sampleCard()}}
	cache := NewGiftCardCache(inner, client, time.Minute)

	// Первый вызов идёт во внутренний репозиторий и наполняет кеш.
	if _, err := cache.GetByCode("SAVE10"); err != nil {
		t.Fatalf("first get by code: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 inner call after miss, got %d", inner.calls)
	}

	// Повторные чтения по коду и по id обслуживаются кешем.
	card, err := cache.GetByCode("save10")
	if err != nil {
		t.Fatalf("cached get by code: %v", err)
	}
	if card.BalanceMinor != 600 {
		t.Fatalf("unexpected cached balance: %d", card.BalanceMinor)
	}
	if _, err := cache.Get("gc-1"); err != nil {
		t.Fatalf("cached get by id: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected cache hits, inner calls=%d", inner.calls)
	}

	// После инвалидации чтение снова идёт во внутренний репозиторий.
	cache.Invalidate(card)
	if _, err := cache.Get("gc-1"); err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected inner call after invalidate, got %d", inner.calls)
	}
}

func openRedisForIntegrationTest(t *testing.T) *goredis.Client {
	t.Helper()

	addr := strings.TrimSpace(os.Getenv("GRANDNODE_REDIS_TEST_ADDR"))
	if addr == "" {
		addr = strings.TrimSpace(os.Getenv("GRANDNODE_REDIS_ADDR"))
	}
	if addr == "" {
		addr = "localhost:6379"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Open(ctx, addr, "", 0)
	if err != nil {
		t.Skipf("redis is not available for integration tests: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancelCleanup := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancelCleanup()
		iter := client.Scan(cleanupCtx, 0, "grandnode:giftcard:*", 0).Iterator()
		for iter.Next(cleanupCtx) {
			_ = client.Del(cleanupCtx, iter.Val()).Err()
		}
		_ = client.Close()
	})

	return client
}
