package parallel

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestParallelizeCoversEveryItem(t *testing.T) {
	for _, workers := range []int{0, 1, 3, 64} {
		seen := make([]int32, 100)
		Parallelize(len(seen), workers, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&seen[i], 1)
			}
		})
		for i, n := range seen {
			if n != 1 {
				t.Fatalf("workers=%d: item %d visited %d times", workers, i, n)
			}
		}
	}
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	calls := 0
	ParallelizeWithThreshold(10, 100, 4, func(start, end int) {
		calls++
		if start != 0 || end != 10 {
			t.Errorf("range = [%d, %d), want [0, 10)", start, end)
		}
	})
	if calls != 1 {
		t.Errorf("expected a single sequential call, got %d", calls)
	}
}

func TestForEachReturnsLowestIndexError(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	err := ForEach(20, 4, func(i int) error {
		switch i {
		case 7:
			return errA
		case 15:
			return errB
		}
		return nil
	})
	if err != errA {
		t.Errorf("err = %v, want %v", err, errA)
	}
}

func TestForEachRecoversPanics(t *testing.T) {
	err := ForEach(5, 2, func(i int) error {
		if i == 3 {
			panic("boom")
		}
		return nil
	})
	if err == nil {
		t.Fatal("expected panic to surface as error")
	}
}

func TestForEachEmpty(t *testing.T) {
	if err := ForEach(0, 4, func(int) error { return errors.New("unreachable") }); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
