package concurrent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestMapPreservesOrder(t *testing.T) {
	pool := NewPool(3)
	got, err := Map(context.Background(), pool, 20, func(i int) (int, error) {
		time.Sleep(time.Duration(20-i) * time.Microsecond)
		return i * i, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range got {
		if v != i*i {
			t.Fatalf("index %d: got %d", i, v)
		}
	}
}

func TestMapBoundsConcurrency(t *testing.T) {
	pool := NewPool(2)
	var inFlight, peak atomic.Int32
	_, err := Map(context.Background(), pool, 16, func(int) (struct{}, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if peak.Load() > 2 {
		t.Fatalf("expected at most 2 concurrent workers, saw %d", peak.Load())
	}
}

func TestMapReturnsFirstErrorByIndex(t *testing.T) {
	pool := NewPool(4)
	errA := errors.New("a")
	errB := errors.New("b")
	_, err := Map(context.Background(), pool, 6, func(i int) (int, error) {
		switch i {
		case 2:
			return 0, errA
		case 4:
			return 0, errB
		}
		return i, nil
	})
	if !errors.Is(err, errA) {
		t.Fatalf("expected errA, got %v", err)
	}
}

func TestDoHonoursCancellation(t *testing.T) {
	pool := NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pool.sem <- struct{}{}
	defer func() { <-pool.sem }()
	if err := pool.Do(ctx, func() error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewPoolDefault(t *testing.T) {
	if NewPool(0).Size() != 10 {
		t.Fatalf("expected default size 10")
	}
}
