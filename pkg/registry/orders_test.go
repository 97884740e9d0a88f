package registry

import (
	"testing"

	"github.com/lilwiggy/twap-gateway/pkg/domain"
)

func TestOrderRegistryUpdateDoesNotMutateConcurrentReaders(t *testing.T) {
	reg := NewOrderRegistry()
	order := &domain.TWAPOrder{
		Symbol:      "BTCUSDT",
		TotalQty:    domain.MustDecimal("1"),
		ExecutedQty: domain.Zero(),
		Status:      domain.TWAPStatusActive,
	}
	reg.Insert(order)

	read, err := reg.Get(order.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if err := reg.Update(order.ID, func(o *domain.TWAPOrder) {
		o.Executions = append(o.Executions, domain.Fill{Price: domain.MustDecimal("100"), Quantity: domain.MustDecimal("1")})
		o.ExecutedQty = domain.MustDecimal("1")
		o.Status = domain.TWAPStatusCompleted
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if len(read.Executions) != 0 {
		t.Fatal("the pointer returned by the earlier Get should not observe the later Update's mutation")
	}

	updated, err := reg.Get(order.ID)
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if len(updated.Executions) != 1 {
		t.Fatalf("executions = %d, want 1", len(updated.Executions))
	}
	if updated.Status != domain.TWAPStatusCompleted {
		t.Fatalf("status = %s, want completed", updated.Status)
	}
}

func TestOrderRegistryGetUnknownIDReturnsNotFound(t *testing.T) {
	reg := NewOrderRegistry()
	if _, err := reg.Get("missing"); err == nil {
		t.Fatal("expected an error for an unknown order id")
	}
}
