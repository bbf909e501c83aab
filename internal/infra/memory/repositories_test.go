package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"proficiency-exam-service/internal/domain"
)

func TestCertificateRepositoryPairAndNumber(t *testing.T) {
	ctx := context.Background()
	repo := NewCertificateRepository()
	first := domain.Certificate{ID: "c1", StudentID: "s1", ExamID: "e1", CertificateNumber: "LLE-2025-A"}

	stored, created, err := repo.Create(ctx, first)
	if err != nil || !created || stored.ID != "c1" {
		t.Fatalf("create: %+v %v %v", stored, created, err)
	}

	dup := domain.Certificate{ID: "c2", StudentID: "s1", ExamID: "e1", CertificateNumber: "LLE-2025-B"}
	stored, created, err = repo.Create(ctx, dup)
	if err != nil || created || stored.ID != "c1" {
		t.Fatalf("expected existing certificate for the pair, got %+v %v %v", stored, created, err)
	}

	clash := domain.Certificate{ID: "c3", StudentID: "s2", ExamID: "e1", CertificateNumber: "LLE-2025-A"}
	if _, _, err := repo.Create(ctx, clash); !errors.Is(err, domain.ErrCertificateNumberTaken) {
		t.Fatalf("expected number taken, got %v", err)
	}

	if err := repo.UpdateDelivery(ctx, "c1", domain.DeliveryStatus{Render: domain.DeliverySent}); err != nil {
		t.Fatalf("update delivery: %v", err)
	}
	got, _ := repo.Get(ctx, "c1")
	if got.Delivery.Render != domain.DeliverySent {
		t.Fatalf("expected delivery to be recorded, got %+v", got.Delivery)
	}

	if err := repo.Delete(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := repo.FindByStudentExam(ctx, "s1", "e1"); found {
		t.Fatalf("pair must be free after delete")
	}
	if _, created, err := repo.Create(ctx, clash); err != nil || !created {
		t.Fatalf("number must be free after delete: %v", err)
	}
}

func TestResultRepositoryAttempts(t *testing.T) {
	ctx := context.Background()
	repo := NewResultRepository()

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int]bool)
	exhausted := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := domain.Result{ID: string(rune('a' + i)), TemplateID: "t1", Student: domain.Student{ID: "s1"}}
			stored, err := repo.Append(ctx, r, 4)
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, domain.ErrAttemptsExhausted) {
				exhausted++
				return
			}
			if err != nil {
				t.Errorf("append: %v", err)
				return
			}
			if seen[stored.AttemptNumber] {
				t.Errorf("attempt %d assigned twice", stored.AttemptNumber)
			}
			seen[stored.AttemptNumber] = true
		}(i)
	}
	wg.Wait()
	if len(seen) != 4 || exhausted != workers-4 {
		t.Fatalf("expected 4 attempts and %d rejections, got %d and %d", workers-4, len(seen), exhausted)
	}

	other, err := repo.Append(ctx, domain.Result{ID: "z", TemplateID: "t2", Student: domain.Student{ID: "s1"}}, 4)
	if err != nil || other.AttemptNumber != 1 {
		t.Fatalf("attempts are counted per template: %+v %v", other, err)
	}
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrResultNotFound) {
		t.Fatalf("expected result not found, got %v", err)
	}
}

func TestKeyedLockerHonoursContext(t *testing.T) {
	l := NewKeyedLocker()
	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	other, err := l.Lock(context.Background(), "other")
	if err != nil {
		t.Fatalf("independent key must not block: %v", err)
	}
	other()

	unlock()
	unlock()
	again, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
	if len(l.keys) != 0 {
		t.Fatalf("expected released keys to be dropped, got %d", len(l.keys))
	}
}

func TestPublicationStoreSwap(t *testing.T) {
	ctx := context.Background()
	s := NewPublicationStore()
	p, err := s.Swap(ctx, 0, "a")
	if err != nil || p.TemplateID != "a" || p.Version != 1 {
		t.Fatalf("swap: %+v %v", p, err)
	}
	if _, err := s.Swap(ctx, 0, "b"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}
	cur, _ := s.Current(ctx)
	if cur.TemplateID != "a" {
		t.Fatalf("stale swap must not apply, got %+v", cur)
	}
}

func TestSettingsInitKeepsExistingRecord(t *testing.T) {
	ctx := context.Background()
	repo := NewSettingsRepository()

	got, err := repo.InitExamSettings(ctx, domain.DefaultExamSettings())
	if err != nil || got.PassingScore != 70 {
		t.Fatalf("expected defaults on an empty store, got %+v %v", got, err)
	}
	if err := repo.SaveExamSettings(ctx, domain.ExamSettings{PassingScore: 40}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err = repo.InitExamSettings(ctx, domain.DefaultExamSettings())
	if err != nil || got.PassingScore != 40 {
		t.Fatalf("init must keep the saved record, got %+v %v", got, err)
	}

	cs := domain.DefaultCertificateSettings()
	cs.Title = "Saved"
	_ = repo.SaveCertificateSettings(ctx, cs)
	gotCS, err := repo.InitCertificateSettings(ctx, domain.DefaultCertificateSettings())
	if err != nil || gotCS.Title != "Saved" {
		t.Fatalf("init must keep the saved certificate record, got %+v %v", gotCS, err)
	}
}
