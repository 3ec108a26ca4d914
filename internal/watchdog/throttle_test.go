package watchdog

import "testing"

func TestShouldLogRoutine(t *testing.T) {
	tests := []struct {
		name    string
		counter int
		cadence int
		want    bool
	}{
		{"fires at zero", 0, 5, true},
		{"silent mid window", 1, 5, false},
		{"silent at window end", 4, 5, false},
		{"cadence one fires always", 0, 1, true},
		{"zero cadence never fires", 0, 0, false},
		{"zero cadence never fires mid count", 3, 0, false},
		{"negative cadence never fires", 0, -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldLogRoutine(tt.counter, tt.cadence); got != tt.want {
				t.Errorf("shouldLogRoutine(%d, %d) = %v, want %v", tt.counter, tt.cadence, got, tt.want)
			}
		})
	}
}

func TestAdvanceCycle(t *testing.T) {
	tests := []struct {
		counter int
		cadence int
		want    int
	}{
		{0, 5, 1},
		{3, 5, 4},
		{4, 5, 0},
		{0, 1, 0},
		{7, 0, 7},
		{2, -3, 2},
	}
	for _, tt := range tests {
		if got := advanceCycle(tt.counter, tt.cadence); got != tt.want {
			t.Errorf("advanceCycle(%d, %d) = %d, want %d", tt.counter, tt.cadence, got, tt.want)
		}
	}
}

func TestThrottleSequence(t *testing.T) {
	counter := 0
	var fired []int
	for cycle := 0; cycle < 12; cycle++ {
		if shouldLogRoutine(counter, 5) {
			fired = append(fired, cycle)
		}
		counter = advanceCycle(counter, 5)
	}
	want := []int{0, 5, 10}
	if len(fired) != len(want) {
		t.Fatalf("fired on cycles %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("fired on cycles %v, want %v", fired, want)
		}
	}
}
