package transcriber

import (
	"testing"
	"time"

	"github.com/echolab/transcriptor/pkg/keypool"
)

func TestSegmentMinutes(t *testing.T) {
	tests := []struct {
		name       string
		totalKeys  int
		configured int
		want       int
	}{
		{"one key long segments", 1, 10, 25},
		{"two keys", 2, 10, 25},
		{"three keys", 3, 10, 20},
		{"five keys", 5, 10, 20},
		{"six keys", 6, 10, 15},
		{"ten keys", 10, 10, 15},
		{"eleven keys", 11, 10, 10},
		{"config raises above floor", 3, 30, 30},
		{"config never lowers below floor", 11, 5, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SegmentMinutes(tt.totalKeys, tt.configured); got != tt.want {
				t.Errorf("SegmentMinutes(%d, %d) = %d, want %d", tt.totalKeys, tt.configured, got, tt.want)
			}
		})
	}
}

func TestSegmentDuration(t *testing.T) {
	if got := SegmentDuration(1, 0); got != 25*time.Minute {
		t.Errorf("SegmentDuration(1, 0) = %v, want 25m", got)
	}
}

func TestWorkerCount(t *testing.T) {
	tests := []struct {
		name       string
		paid, free []string
		maxWorkers int
		want       int
	}{
		{
			name: "paid keys only",
			paid: []string{"p1", "p2", "p3"},
			want: 3,
		},
		{
			name: "free backup reserve excluded",
			free: []string{"f1", "f2", "f3", "f4"},
			want: 3,
		},
		{
			name:       "config caps workers",
			paid:       []string{"p1", "p2", "p3", "p4"},
			maxWorkers: 2,
			want:       2,
		},
		{
			name: "empty pool still one worker",
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := keypool.New(tt.paid, tt.free)
			if got := WorkerCount(pool, tt.maxWorkers); got != tt.want {
				t.Errorf("WorkerCount() = %d, want %d", got, tt.want)
			}
		})
	}
}
