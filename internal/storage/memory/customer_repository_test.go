package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dborovsky/grandnode/internal/domain"
	"github.com/dborovsky/grandnode/internal/storage/memory"
)

func newCustomer() domain.Customer {
	now := time.Now().UTC()
	return domain.Customer{
		ID:         "customer-1",
		Email:      "ivan@example.com",
		Registered: true,
		Addresses: []domain.Address{
			{ID: "addr-1", Attributes: []domain.AddressAttribute{{Key: "City", Value: "Minsk"}}, CreatedAt: now},
		},
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCustomerRepository_CreateGet(t *testing.T) {
	repo := memory.NewCustomerRepository()
	customer := newCustomer()

	if err := repo.Create(customer); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(customer.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != customer.ID || len(stored.Addresses) != 1 {
		t.Fatalf("unexpected customer: %+v", stored)
	}
}

func TestCustomerRepository_GetNotFound(t *testing.T) {
	repo := memory.NewCustomerRepository()
	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

func TestCustomerRepository_SaveIncrementsVersion(t *testing.T) {
	repo := memory.NewCustomerRepository()
	if err := repo.Create(newCustomer()); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get("customer-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	stored.GiftBalanceMinor = 1000
	stored.GiftCards = append(stored.GiftCards, domain.AppliedGiftCard{
		GiftCardID: "gc-1", Code: "SAVE10", AmountMinor: 1000,
	})
	if err := repo.Save(stored); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	updated, err := repo.Get("customer-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if updated.GiftBalanceMinor != 1000 || len(updated.GiftCards) != 1 {
		t.Fatalf("unexpected customer after save: %+v", updated)
	}
	if updated.Version != stored.Version+1 {
		t.Fatalf("expected version increment, got %d", updated.Version)
	}
}

// Две конкурентные попытки применить карту читают одну версию;
// вторая запись должна упасть с конфликтом, а не задвоить зачисление.
func TestCustomerRepository_SaveVersionConflict(t *testing.T) {
	repo := memory.NewCustomerRepository()
	if err := repo.Create(newCustomer()); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first, _ := repo.Get("customer-1")
	second, _ := repo.Get("customer-1")

	first.GiftBalanceMinor = 1000
	if err := repo.Save(first); err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	second.GiftBalanceMinor = 1000
	if err := repo.Save(second); !errors.Is(err, domain.ErrCustomerVersionConflict) {
		t.Fatalf("expected ErrCustomerVersionConflict, got %v", err)
	}

	stored, _ := repo.Get("customer-1")
	if stored.GiftBalanceMinor != 1000 {
		t.Fatalf("balance must be credited exactly once, got %d", stored.GiftBalanceMinor)
	}
}
