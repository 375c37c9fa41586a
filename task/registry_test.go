package task

import "testing"

func TestRegistryInsertionOrder(t *testing.T) {
	r := NewRegistry[string]()
	r.Set(3, "c")
	r.Set(1, "a")
	r.Set(2, "b")
	r.Set(1, "a-updated") // overwrite must not move position

	got := r.Drain()
	want := []string{"c", "a-updated", "b"}
	if len(got) != len(want) {
		t.Fatalf("Drain() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Drain()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if r.Len() != 0 {
		t.Errorf("Len() after Drain = %d, want 0", r.Len())
	}
}

func TestRegistryDelete(t *testing.T) {
	r := NewRegistry[int]()
	r.Set(1, 10)
	r.Set(2, 20)
	r.Set(3, 30)

	v, ok := r.Delete(2)
	if !ok || v != 20 {
		t.Fatalf("Delete(2) = %d, %v", v, ok)
	}
	if _, ok := r.Get(2); ok {
		t.Error("Get(2) should fail after Delete")
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}

	got := r.Drain()
	if len(got) != 2 || got[0] != 10 || got[1] != 30 {
		t.Errorf("Drain() after delete = %v, want [10 30]", got)
	}
}

func TestRegistryDeleteMissing(t *testing.T) {
	r := NewRegistry[int]()
	if _, ok := r.Delete(99); ok {
		t.Error("Delete of missing id should return ok=false")
	}
}

func TestSequenceStrictlyIncreasingAndUnique(t *testing.T) {
	s := &Sequence{}
	seen := make(map[int64]bool)
	prev := int64(0)
	for i := 0; i < 1000; i++ {
		id := s.Next()
		if id <= prev {
			t.Fatalf("Next() = %d, not strictly greater than previous %d", id, prev)
		}
		if seen[id] {
			t.Fatalf("Next() returned duplicate id %d", id)
		}
		seen[id] = true
		prev = id
	}
}

func TestSequenceConcurrentUnique(t *testing.T) {
	s := &Sequence{}
	const n = 200
	ids := make(chan int64, n)
	for i := 0; i < n; i++ {
		go func() { ids <- s.Next() }()
	}
	seen := make(map[int64]bool, n)
	for i := 0; i < n; i++ {
		id := <-ids
		if seen[id] {
			t.Fatalf("duplicate id %d under concurrent Next()", id)
		}
		seen[id] = true
	}
}
