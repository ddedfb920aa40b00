package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	breeze "github.com/beamo-co/breeze-go"
)

func TestInMemoryLedger_MarkDelivered(t *testing.T) {
	ledger := NewInMemoryLedger(time.Hour)
	ctx := context.Background()
	tx := breeze.CompletedTransaction{ID: "pp_1", ProductID: "sku_1", Source: breeze.SourcePoll}

	fresh, err := ledger.MarkDelivered(ctx, tx)
	if err != nil || !fresh {
		t.Fatalf("Expected first mark to be fresh, got %v, %v", fresh, err)
	}
	fresh, err = ledger.MarkDelivered(ctx, tx)
	if err != nil || fresh {
		t.Errorf("Expected second mark to be a duplicate, got %v, %v", fresh, err)
	}

	got, ok := ledger.Get("pp_1")
	if !ok || got.ProductID != "sku_1" {
		t.Errorf("Expected recorded transaction, got %+v", got)
	}
}

func TestInMemoryLedger_Expiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	ledger := NewInMemoryLedger(time.Minute, WithClock(clock))
	ctx := context.Background()

	ledger.MarkDelivered(ctx, breeze.CompletedTransaction{ID: "pp_1"})
	advance(59 * time.Second)
	if fresh, _ := ledger.MarkDelivered(ctx, breeze.CompletedTransaction{ID: "pp_1"}); fresh {
		t.Error("Expected id to be remembered before the TTL")
	}

	advance(time.Second)
	if _, ok := ledger.Get("pp_1"); ok {
		t.Error("Expected id to be forgotten at the TTL")
	}

	// marking another id cleans up expired entries lazily
	ledger.MarkDelivered(ctx, breeze.CompletedTransaction{ID: "pp_2"})
	if ledger.Len() != 1 {
		t.Errorf("Expected 1 entry after cleanup, got %d", ledger.Len())
	}
}

func TestInMemoryLedger_Concurrent(t *testing.T) {
	ledger := NewInMemoryLedger(time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := ledger.MarkDelivered(ctx, breeze.CompletedTransaction{ID: "pp_1"})
			if ok {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if fresh != 1 {
		t.Errorf("Expected exactly one fresh mark, got %d", fresh)
	}
}
