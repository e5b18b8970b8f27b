package partition

import (
	"errors"
	"math"
	"testing"

	"github.com/quartzmem/quartz/internal/fingerprint"
)

func TestCreateAssignsDeterministicPositions(t *testing.T) {
	r1 := NewRegistry(4, 1.0)
	r2 := NewRegistry(4, 1.0)

	for i := 0; i < 3; i++ {
		p1 := r1.Create("conversation", "surface")
		p2 := r2.Create("conversation", "surface")
		for d := range p1.Position {
			if math.Abs(p1.Position[d]-p2.Position[d]) > 1e-12 {
				t.Errorf("partition %d dim %d: %f != %f", i+1, d, p1.Position[d], p2.Position[d])
			}
		}
	}
}

func TestCreateSeparatesSiblings(t *testing.T) {
	r := NewRegistry(4, 1.0)
	a := r.Create("conversation", "surface")
	b := r.Create("conversation", "surface")

	if euclidean(a.Position, b.Position) == 0 {
		t.Error("sibling partitions share a position")
	}
	if len(a.Position) != 4 {
		t.Errorf("position dims = %d, want 4", len(a.Position))
	}
}

func TestCapacityGrowsWithFibonacci(t *testing.T) {
	r := NewRegistry(4, 1.0)

	want := []float64{1, 1, 2, 3, 5, 8}
	var prev float64
	for i, fib := range want {
		p := r.Create("conversation", "surface")
		if math.Abs(p.Capacity-fib*fingerprint.Phi) > 1e-9 {
			t.Errorf("partition %d capacity = %f, want %f", i+1, p.Capacity, fib*fingerprint.Phi)
		}
		if p.Capacity < prev {
			t.Errorf("partition %d capacity shrank: %f < %f", i+1, p.Capacity, prev)
		}
		prev = p.Capacity
	}
}

func TestGroupsAreIndependent(t *testing.T) {
	r := NewRegistry(4, 1.0)
	r.Create("conversation", "surface")
	r.Create("conversation", "surface")
	r.Create("insight", "deep")

	if n := len(r.List("conversation", "surface")); n != 2 {
		t.Errorf("conversation/surface group size = %d, want 2", n)
	}
	if n := len(r.List("insight", "deep")); n != 1 {
		t.Errorf("insight/deep group size = %d, want 1", n)
	}
	if r.Count() != 3 {
		t.Errorf("total partitions = %d, want 3", r.Count())
	}
}

func TestGetNotFound(t *testing.T) {
	r := NewRegistry(4, 1.0)
	_, err := r.Get("missing")
	if !errors.Is(err, ErrPartitionNotFound) {
		t.Errorf("err = %v, want ErrPartitionNotFound", err)
	}
}

func TestNewest(t *testing.T) {
	r := NewRegistry(4, 1.0)
	if r.Newest("conversation", "surface") != nil {
		t.Error("Newest on empty group should be nil")
	}
	r.Create("conversation", "surface")
	b := r.Create("conversation", "surface")
	if got := r.Newest("conversation", "surface"); got == nil || got.ID != b.ID {
		t.Error("Newest did not return the last-created partition")
	}
}

func TestAddLoad(t *testing.T) {
	r := NewRegistry(4, 1.0)
	p := r.Create("conversation", "surface")

	p.AddLoad(1)
	p.AddLoad(1)
	if p.Load() != 2 {
		t.Errorf("load = %d, want 2", p.Load())
	}
	p.AddLoad(-1)
	if p.Load() != 1 {
		t.Errorf("load = %d, want 1", p.Load())
	}
}

func TestAddLoadPanicsOnNegative(t *testing.T) {
	r := NewRegistry(4, 1.0)
	p := r.Create("conversation", "surface")

	defer func() {
		if recover() == nil {
			t.Error("expected panic on negative load")
		}
	}()
	p.AddLoad(-1)
}
