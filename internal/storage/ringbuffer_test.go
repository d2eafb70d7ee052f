package storage

import (
	"sync"
	"testing"
)

func TestRingBufferBasic(t *testing.T) {
	rb := NewRingBuffer[int](3)

	if rb.Size() != 0 {
		t.Fatalf("expected size 0, got %d", rb.Size())
	}
	if rb.Capacity() != 3 {
		t.Fatalf("expected capacity 3, got %d", rb.Capacity())
	}

	for i := 1; i <= 3; i++ {
		if _, evicted := rb.Add(i); evicted {
			t.Fatalf("unexpected eviction adding %d", i)
		}
	}

	all := rb.GetAll()
	expected := []int{1, 2, 3}
	if len(all) != len(expected) {
		t.Fatalf("expected %d items, got %d", len(expected), len(all))
	}
	for i, val := range all {
		if val != expected[i] {
			t.Errorf("at index %d: expected %d, got %d", i, expected[i], val)
		}
	}
}

func TestRingBufferWrappingReportsEvictions(t *testing.T) {
	rb := NewRingBuffer[int](3)
	rb.Add(1)
	rb.Add(2)
	rb.Add(3)

	old, evicted := rb.Add(4)
	if !evicted || old != 1 {
		t.Fatalf("expected eviction of 1, got %d (evicted=%v)", old, evicted)
	}
	old, evicted = rb.Add(5)
	if !evicted || old != 2 {
		t.Fatalf("expected eviction of 2, got %d (evicted=%v)", old, evicted)
	}

	all := rb.GetAll()
	expected := []int{3, 4, 5}
	for i, val := range all {
		if val != expected[i] {
			t.Errorf("at index %d: expected %d, got %d", i, expected[i], val)
		}
	}
}

func TestRingBufferGetRecent(t *testing.T) {
	rb := NewRingBuffer[int](10)
	for i := 0; i < 5; i++ {
		rb.Add(i)
	}

	recent := rb.GetRecent(3)
	expected := []int{2, 3, 4}
	if len(recent) != 3 {
		t.Fatalf("expected 3 recent items, got %d", len(recent))
	}
	for i, val := range recent {
		if val != expected[i] {
			t.Errorf("at index %d: expected %d, got %d", i, expected[i], val)
		}
	}

	if recent = rb.GetRecent(10); len(recent) != 5 {
		t.Fatalf("expected 5 items when requesting more than available, got %d", len(recent))
	}
}

func TestRingBufferClear(t *testing.T) {
	rb := NewRingBuffer[*int](2)
	a, b := 1, 2
	rb.Add(&a)
	rb.Add(&b)
	rb.Clear()

	if rb.Size() != 0 {
		t.Fatalf("expected size 0 after clear, got %d", rb.Size())
	}
	if all := rb.GetAll(); all != nil {
		t.Fatalf("expected nil after clear, got %v", all)
	}
	if _, evicted := rb.Add(&a); evicted {
		t.Fatal("no eviction expected after clear")
	}
}

func TestRingBufferZeroCapacityPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for zero capacity")
		}
	}()
	NewRingBuffer[int](0)
}

func TestRingBufferConcurrent(t *testing.T) {
	rb := NewRingBuffer[int](1000)
	var wg sync.WaitGroup

	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rb.Add(base*100 + i)
			}
		}(w)
	}
	for r := 0; r < 5; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = rb.GetAll()
				_ = rb.Size()
			}
		}()
	}
	wg.Wait()

	if rb.Size() != 1000 {
		t.Fatalf("expected size 1000, got %d", rb.Size())
	}
}
