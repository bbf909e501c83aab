package redis

import (
	"context"
	"errors"
	"sync"
	"testing"

	"proficiency-exam-service/internal/domain"
)

func TestPublicationStoreCompareAndSwap(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()
	store := NewPublicationStore(client)

	cur, err := store.Current(ctx)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if cur.Active() || cur.Version != 0 {
		t.Fatalf("expected empty pointer, got %+v", cur)
	}

	p, err := store.Swap(ctx, 0, "t1")
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if p.TemplateID != "t1" || p.Version != 1 {
		t.Fatalf("unexpected pointer %+v", p)
	}

	if _, err := store.Swap(ctx, 0, "t2"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}

	p, err = store.Swap(ctx, 1, "")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	cur, err = store.Current(ctx)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if cur.Active() || cur.Version != 2 || cur.Version != p.Version {
		t.Fatalf("expected cleared pointer at version 2, got %+v", cur)
	}
}

func TestPublicationStoreConcurrentSwapsHaveOneWinner(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()
	store := NewPublicationStore(client)

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Swap(ctx, 0, string(rune('a'+i)))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, domain.ErrConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}
