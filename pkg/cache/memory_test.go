package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingCompute returns a compute func that reports valid and counts calls.
func countingCompute(valid bool, calls *atomic.Int32) ComputeFunc {
	return func(context.Context) (bool, error) {
		calls.Add(1)
		return valid, nil
	}
}

func newTestMemory(t *testing.T) *Memory {
	t.Helper()

	m, err := NewMemory(MemoryConfig{MaxEntries: 1000})
	if err != nil {
		t.Fatalf("NewMemory() error = %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func TestMemory_GetOrAdd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		valid bool
	}{
		{name: "caches true", valid: true},
		{name: "caches false", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newTestMemory(t)
			ctx := context.Background()
			var calls atomic.Int32

			for range 3 {
				got, err := m.GetOrAdd(ctx, "tok", time.Hour, countingCompute(tt.valid, &calls))
				if err != nil {
					t.Fatalf("GetOrAdd() error = %v", err)
				}
				if got != tt.valid {
					t.Errorf("GetOrAdd() = %v, want %v", got, tt.valid)
				}
			}
			if n := calls.Load(); n != 1 {
				t.Errorf("compute calls = %d, want 1", n)
			}
		})
	}
}

func TestMemory_ComputeErrorNotStored(t *testing.T) {
	t.Parallel()

	m := newTestMemory(t)
	ctx := context.Background()
	errBoom := errors.New("boom")

	_, err := m.GetOrAdd(ctx, "tok", time.Hour, func(context.Context) (bool, error) {
		return false, errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("GetOrAdd() error = %v, want %v", err, errBoom)
	}

	var calls atomic.Int32
	got, err := m.GetOrAdd(ctx, "tok", time.Hour, countingCompute(true, &calls))
	if err != nil {
		t.Fatalf("GetOrAdd() error = %v", err)
	}
	if !got || calls.Load() != 1 {
		t.Errorf("GetOrAdd() = %v with %d calls, want true with 1 call", got, calls.Load())
	}
}

func TestMemory_Remove(t *testing.T) {
	t.Parallel()

	m := newTestMemory(t)
	ctx := context.Background()
	var calls atomic.Int32

	if _, err := m.GetOrAdd(ctx, "tok", time.Hour, countingCompute(false, &calls)); err != nil {
		t.Fatalf("GetOrAdd() error = %v", err)
	}
	if err := m.Remove(ctx, "tok"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := m.Remove(ctx, "absent"); err != nil {
		t.Errorf("Remove(absent) error = %v, want nil", err)
	}

	got, err := m.GetOrAdd(ctx, "tok", time.Hour, countingCompute(true, &calls))
	if err != nil {
		t.Fatalf("GetOrAdd() error = %v", err)
	}
	if !got {
		t.Error("GetOrAdd() after Remove returned stale value")
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("compute calls = %d, want 2", n)
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	t.Parallel()

	m := newTestMemory(t)
	ctx := context.Background()
	var calls atomic.Int32

	if _, err := m.GetOrAdd(ctx, "tok", 50*time.Millisecond, countingCompute(true, &calls)); err != nil {
		t.Fatalf("GetOrAdd() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if _, err := m.GetOrAdd(ctx, "tok", time.Hour, countingCompute(true, &calls)); err != nil {
		t.Fatalf("GetOrAdd() error = %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("compute calls = %d, want 2 after expiry", n)
	}
}

func TestMemory_CoalescesConcurrentFills(t *testing.T) {
	t.Parallel()

	m := newTestMemory(t)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (bool, error) {
		calls.Add(1)
		<-release
		return true, nil
	}

	const workers = 10
	var wg sync.WaitGroup
	var started sync.WaitGroup
	started.Add(workers)
	results := make(chan bool, workers)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started.Done()
			got, err := m.GetOrAdd(ctx, "tok", time.Hour, compute)
			if err != nil {
				t.Errorf("GetOrAdd() error = %v", err)
			}
			results <- got
		}()
	}

	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for got := range results {
		if !got {
			t.Error("GetOrAdd() = false, want true")
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("compute calls = %d, want 1", n)
	}
}

func TestMemory_Closed(t *testing.T) {
	t.Parallel()

	m, err := NewMemory(MemoryConfig{})
	if err != nil {
		t.Fatalf("NewMemory() error = %v", err)
	}
	m.Close()
	m.Close()

	var calls atomic.Int32
	if _, err := m.GetOrAdd(context.Background(), "tok", time.Hour, countingCompute(true, &calls)); !errors.Is(err, ErrClosed) {
		t.Errorf("GetOrAdd() error = %v, want %v", err, ErrClosed)
	}
	if err := m.Remove(context.Background(), "tok"); !errors.Is(err, ErrClosed) {
		t.Errorf("Remove() error = %v, want %v", err, ErrClosed)
	}
}

func TestHashKey(t *testing.T) {
	t.Parallel()

	a, b := HashKey("token-a"), HashKey("token-b")
	if a == b {
		t.Error("HashKey() collision for distinct keys")
	}
	if len(a) != 64 {
		t.Errorf("len(HashKey()) = %d, want 64", len(a))
	}
	if a != HashKey("token-a") {
		t.Error("HashKey() not deterministic")
	}
}
