package allocation

import (
	"fmt"
	"testing"

	"github.com/matt-riley/splitz/internal/models"
)

func int64Ptr(v int64) *int64 { return &v }

func table(entries ...models.VariationConfiguration) []models.VariationConfiguration {
	return entries
}

func TestPickBoundaries(t *testing.T) {
	twoWay := table(
		models.VariationConfiguration{VariationID: 0, Deviation: 0.5},
		models.VariationConfiguration{VariationID: 5, Deviation: 0.5},
	)
	partial := table(
		models.VariationConfiguration{VariationID: 0, Deviation: 0.4},
		models.VariationConfiguration{VariationID: 5, Deviation: 0.4},
	)

	tests := []struct {
		name   string
		table  []models.VariationConfiguration
		hash   float64
		wantID int
		wantOK bool
	}{
		{"just below boundary", twoWay, 0.4999, 0, true},
		{"exactly on boundary belongs to first entry", twoWay, 0.5, 0, true},
		{"just above boundary", twoWay, 0.50001, 5, true},
		{"zero hash", twoWay, 0, 0, true},
		{"top of range", twoWay, 0.999999, 5, true},
		{"partial coverage miss", partial, 0.9, 0, false},
		{"partial coverage hit", partial, 0.7, 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := pick(tt.table, 1.0, tt.hash)
			if ok != tt.wantOK || (ok && id != tt.wantID) {
				t.Fatalf("pick(hash=%v) = (%d, %v), want (%d, %v)", tt.hash, id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestPickExpositionScalesCoverage(t *testing.T) {
	full := table(models.VariationConfiguration{VariationID: 7, Deviation: 1.0})

	id, ok := pick(full, 0.5, 0.4)
	if !ok || id != 7 {
		t.Fatalf("hash 0.4 under exposition 0.5 = (%d, %v), want (7, true)", id, ok)
	}
	if _, ok := pick(full, 0.5, 0.6); ok {
		t.Fatal("hash 0.6 under exposition 0.5 must not allocate")
	}
}

func TestAllocateFullCoverageAlwaysAllocates(t *testing.T) {
	// Deviation table {0: 0.0, 7: 1.0} must allocate variation 7 for every
	// visitor code.
	full := table(
		models.VariationConfiguration{VariationID: 0, Deviation: 0.0},
		models.VariationConfiguration{VariationID: 7, Deviation: 1.0},
	)

	for i := 0; i < 200; i++ {
		visitor := fmt.Sprintf("visitor-%d", i)
		id, ok := Allocate(visitor, 100, full, 1.0)
		if !ok || id != 7 {
			t.Fatalf("Allocate(%q) = (%d, %v), want (7, true)", visitor, id, ok)
		}
	}
}

func TestAllocateDeterministic(t *testing.T) {
	deviations := table(
		models.VariationConfiguration{VariationID: 0, Deviation: 0.3},
		models.VariationConfiguration{VariationID: 3, Deviation: 0.3},
		models.VariationConfiguration{VariationID: 9, Deviation: 0.4},
	)

	firstID, firstOK := Allocate("alice", 42, deviations, 1.0)
	for i := 0; i < 50; i++ {
		id, ok := Allocate("alice", 42, deviations, 1.0)
		if id != firstID || ok != firstOK {
			t.Fatalf("call %d = (%d, %v), want (%d, %v)", i, id, ok, firstID, firstOK)
		}
	}
}

func TestAllocateIgnoresTableOrder(t *testing.T) {
	forward := table(
		models.VariationConfiguration{VariationID: 0, Deviation: 0.5},
		models.VariationConfiguration{VariationID: 5, Deviation: 0.5, RespoolTime: int64Ptr(111)},
	)
	reversed := table(forward[1], forward[0])

	for i := 0; i < 50; i++ {
		visitor := fmt.Sprintf("v-%d", i)
		a, aok := Allocate(visitor, 1, forward, 1.0)
		b, bok := Allocate(visitor, 1, reversed, 1.0)
		if a != b || aok != bok {
			t.Fatalf("order-sensitive allocation for %q: (%d,%v) vs (%d,%v)", visitor, a, aok, b, bok)
		}
	}
}

func TestAllocateRespoolChangesHashInput(t *testing.T) {
	base := table(
		models.VariationConfiguration{VariationID: 0, Deviation: 0.5},
		models.VariationConfiguration{VariationID: 5, Deviation: 0.5},
	)
	repooled := table(
		models.VariationConfiguration{VariationID: 0, Deviation: 0.5, RespoolTime: int64Ptr(1700000000)},
		models.VariationConfiguration{VariationID: 5, Deviation: 0.5},
	)

	// With many visitors, at least one must land differently once the
	// repool timestamp enters the hash input.
	changed := false
	for i := 0; i < 100; i++ {
		visitor := fmt.Sprintf("visitor-%d", i)
		a, _ := Allocate(visitor, 7, base, 1.0)
		b, _ := Allocate(visitor, 7, repooled, 1.0)
		if a != b {
			changed = true
			break
		}
	}
	if !changed {
		t.Fatal("repool timestamp never altered any allocation")
	}
}

func TestAllocateEmptyTable(t *testing.T) {
	if _, ok := Allocate("alice", 1, nil, 1.0); ok {
		t.Fatal("empty table must not allocate")
	}
}

func TestSticky(t *testing.T) {
	withRepool := table(
		models.VariationConfiguration{VariationID: 0, Deviation: 0.5},
		models.VariationConfiguration{VariationID: 5, Deviation: 0.5, RespoolTime: int64Ptr(2000)},
	)

	tests := []struct {
		name        string
		variationID int
		assignedAt  int64
		want        bool
	}{
		{"no repool time stays sticky", 0, 1000, true},
		{"assignment newer than repool stays sticky", 5, 3000, true},
		{"assignment at repool instant stays sticky", 5, 2000, true},
		{"assignment older than repool is invalidated", 5, 1000, false},
		{"variation gone from table", 9, 3000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sticky(withRepool, tt.variationID, tt.assignedAt); got != tt.want {
				t.Fatalf("Sticky(%d, %d) = %v, want %v", tt.variationID, tt.assignedAt, got, tt.want)
			}
		})
	}
}

func TestSelectMEGroupFlag(t *testing.T) {
	group := []*models.FeatureFlag{
		{ID: 1, Key: "one"},
		{ID: 2, Key: "two"},
		{ID: 3, Key: "three"},
	}

	t.Run("deterministic", func(t *testing.T) {
		first := SelectMEGroupFlag("alice", "checkout", group)
		for i := 0; i < 50; i++ {
			if got := SelectMEGroupFlag("alice", "checkout", group); got != first {
				t.Fatalf("selection changed between calls: %v vs %v", got.Key, first.Key)
			}
		}
	})

	t.Run("golden selection", func(t *testing.T) {
		// hash("alice"+"checkout") = 0.240681...; floor(0.2407*3) = 0.
		if got := SelectMEGroupFlag("alice", "checkout", group); got.ID != 1 {
			t.Fatalf("SelectMEGroupFlag(alice) = flag %d, want 1", got.ID)
		}
	})

	t.Run("single member group", func(t *testing.T) {
		single := group[:1]
		if got := SelectMEGroupFlag("anyone", "g", single); got != single[0] {
			t.Fatal("single-member group must always elect its member")
		}
	})

	t.Run("empty group", func(t *testing.T) {
		if got := SelectMEGroupFlag("alice", "g", nil); got != nil {
			t.Fatalf("empty group = %v, want nil", got)
		}
	})
}
