package queue

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPutGet(t *testing.T) {
	q := New[int](4)

	for i := 0; i < 4; i++ {
		if err := q.Put(i); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}

	for i := 0; i < 4; i++ {
		task, ok, drained := q.Get(time.Second)
		if !ok || drained {
			t.Fatalf("Get: ok=%v drained=%v", ok, drained)
		}
		if task != i {
			t.Errorf("Get = %d, want %d", task, i)
		}
	}
}

func TestPutFull(t *testing.T) {
	q := New[int](1)
	if err := q.Put(1); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := q.Put(2); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestGetTimeout(t *testing.T) {
	q := New[int](1)

	start := time.Now()
	_, ok, drained := q.Get(20 * time.Millisecond)
	if ok || drained {
		t.Fatalf("expected timeout, got ok=%v drained=%v", ok, drained)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Get returned after %v, want >= 20ms", elapsed)
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d, want 0", q.Len())
	}
}

func TestCloseDrains(t *testing.T) {
	q := New[int](2)
	q.Put(1)
	q.Put(2)
	q.Close()

	// Remaining tasks are still delivered after Close.
	for i := 1; i <= 2; i++ {
		task, ok, _ := q.Get(time.Second)
		if !ok || task != i {
			t.Fatalf("Get = %d, %v; want %d, true", task, ok, i)
		}
	}

	_, ok, drained := q.Get(time.Second)
	if ok || !drained {
		t.Fatalf("expected drained signal, got ok=%v drained=%v", ok, drained)
	}
}

func TestConcurrentConsumers(t *testing.T) {
	const tasks = 100
	q := New[int](tasks)
	for i := 0; i < tasks; i++ {
		q.Put(i)
	}
	q.Close()

	var mu sync.Mutex
	seen := make(map[int]int)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, ok, drained := q.Get(time.Second)
				if drained {
					return
				}
				if !ok {
					continue
				}
				mu.Lock()
				seen[task]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != tasks {
		t.Fatalf("consumed %d distinct tasks, want %d", len(seen), tasks)
	}
	for task, n := range seen {
		if n != 1 {
			t.Errorf("task %d consumed %d times", task, n)
		}
	}
}
