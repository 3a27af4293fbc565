package progress

import "testing"

func TestPercent(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want int
	}{
		{"unknown total", Snapshot{BytesReady: 500}, 0},
		{"zero", Snapshot{BytesTotal: 10}, 0},
		{"floor", Snapshot{BytesReady: 999, BytesTotal: 1000}, 99},
		{"half", Snapshot{BytesReady: 5, BytesTotal: 10}, 50},
		{"done", Snapshot{BytesReady: 10, BytesTotal: 10}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.snap.Percent(); got != tt.want {
				t.Errorf("Percent() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAmount(t *testing.T) {
	if got := (Snapshot{BytesReady: 1000, BytesTotal: 2000}).Amount(); got != "1.0 kB / 2.0 kB" {
		t.Errorf("Amount() = %q", got)
	}
	if got := (Snapshot{BytesReady: 42}).Amount(); got != "42 B" {
		t.Errorf("Amount() with unknown total = %q", got)
	}
}

func TestRate(t *testing.T) {
	tests := []struct {
		snap Snapshot
		want string
	}{
		{Snapshot{}, ""},
		{Snapshot{SpeedRate: 2000}, "2.0 kB/s"},
		{Snapshot{Elapsed: 65}, "01:05"},
		{Snapshot{SpeedRate: 2000, Elapsed: 3725}, "2.0 kB/s | 01:02:05"},
	}

	for _, tt := range tests {
		if got := tt.snap.Rate(); got != tt.want {
			t.Errorf("Rate(%+v) = %q, want %q", tt.snap, got, tt.want)
		}
	}
}
