package heat

import "testing"

func TestIsBoilingThresholdEdges(t *testing.T) {
	if IsBoiling(99) {
		t.Fatal("99 must not be boiling")
	}
	if !IsBoiling(100) {
		t.Fatal("100 must be boiling")
	}
	if !IsBoiling(255) {
		t.Fatal("255 must be boiling")
	}
	if IsBoiling(-5) {
		t.Fatal("negative heat must not be boiling")
	}
}

func TestDisplayHeatClampsNegatives(t *testing.T) {
	if got := DisplayHeat(-3); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := DisplayHeat(42); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

type heatValue int

func (h heatValue) Heat() int { return int(h) }

func TestSortKettlesByHeatTwoKeyOrder(t *testing.T) {
	kettles := []heatValue{64, 178, 92, 112, 45}
	SortKettlesByHeat(kettles)

	expected := []heatValue{178, 112, 92, 64, 45}
	for index, want := range expected {
		if kettles[index] != want {
			t.Fatalf("position %d: expected %d, got %d", index, want, kettles[index])
		}
	}
}

func TestSortKettlesByHeatBoilingBeforeHotterLooking(t *testing.T) {
	// The boiling key is compared before the numeric key, so 100 beats 99
	// decisively and equal-heat boiling kettles keep their relative order.
	kettles := []heatValue{99, 100, 100}
	SortKettlesByHeat(kettles)
	if kettles[0] != 100 || kettles[1] != 100 || kettles[2] != 99 {
		t.Fatalf("unexpected order: %v", kettles)
	}
}

// Room scenario: posts with heat [120, 40, 95].
func TestRoomAggregateScenario(t *testing.T) {
	memberHeat := []int{120, 40, 95}

	total := 0
	for _, value := range memberHeat {
		total += value
	}
	if total != 255 {
		t.Fatalf("expected total heat 255, got %d", total)
	}
	if !IsBoiling(total) {
		t.Fatal("room with total heat 255 must be boiling")
	}

	wantPostFlags := []bool{true, false, false}
	for index, value := range memberHeat {
		if IsBoiling(value) != wantPostFlags[index] {
			t.Fatalf("post %d: expected boiling=%v for heat %d", index, wantPostFlags[index], value)
		}
	}

	// Total heat is a pure sum: invariant under member reordering.
	reordered := []int{95, 120, 40}
	reorderedTotal := 0
	for _, value := range reordered {
		reorderedTotal += value
	}
	if reorderedTotal != total {
		t.Fatalf("total heat changed under reordering: %d vs %d", reorderedTotal, total)
	}
}
