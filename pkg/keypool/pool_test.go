package keypool

import (
	"sync"
	"testing"
	"time"
)

// fakeClock provides a manually advanced clock for pool tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestReserveCount(t *testing.T) {
	tests := []struct {
		name     string
		freeKeys int
		want     int
	}{
		{name: "no free keys", freeKeys: 0, want: 0},
		{name: "single free key is never reserved", freeKeys: 1, want: 0},
		{name: "two free keys reserve one", freeKeys: 2, want: 1},
		{name: "three free keys reserve one", freeKeys: 3, want: 1},
		{name: "four free keys reserve one", freeKeys: 4, want: 1},
		{name: "eight free keys reserve two", freeKeys: 8, want: 2},
		{name: "twelve free keys reserve three", freeKeys: 12, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reserveCount(tt.freeKeys); got != tt.want {
				t.Errorf("reserveCount(%d) = %d, want %d", tt.freeKeys, got, tt.want)
			}
		})
	}
}

func TestAcquireLeastLoadedFairness(t *testing.T) {
	clock := newFakeClock()
	pool := New([]string{"keyA", "keyB"}, nil, WithClock(clock.Now))

	counts := map[string]int{}
	for i := 0; i < 10; i++ {
		key, wait, ok := pool.Acquire()
		if !ok {
			t.Fatal("Acquire() ok = false, want true")
		}
		if wait != 0 {
			t.Fatalf("Acquire() wait = %v, want 0", wait)
		}
		counts[key]++
	}

	diff := counts["keyA"] - counts["keyB"]
	if diff < -1 || diff > 1 {
		t.Errorf("call distribution %v, want difference of at most 1", counts)
	}
}

func TestAcquireRespectsCooldown(t *testing.T) {
	clock := newFakeClock()
	pool := New([]string{"keyA", "keyB"}, nil, WithClock(clock.Now))

	pool.Cooldown("keyA", 5*time.Second)

	for i := 0; i < 20; i++ {
		key, wait, ok := pool.Acquire()
		if !ok {
			t.Fatal("Acquire() ok = false, want true")
		}
		if key == "keyA" && wait == 0 {
			t.Fatal("Acquire() returned cooling key keyA as available")
		}
	}

	clock.Advance(5*time.Second + time.Millisecond)

	seenA := false
	for i := 0; i < 10; i++ {
		key, wait, _ := pool.Acquire()
		if key == "keyA" && wait == 0 {
			seenA = true
		}
	}
	if !seenA {
		t.Error("keyA never returned after cooldown expiry")
	}
}

func TestAcquireConcurrentCooldownVisibility(t *testing.T) {
	clock := newFakeClock()
	pool := New([]string{"keyA"}, []string{"keyB"}, WithClock(clock.Now))

	pool.Cooldown("keyA", 10*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key, wait, ok := pool.Acquire()
				if !ok {
					t.Error("Acquire() ok = false, want true")
					return
				}
				if key == "keyA" && wait == 0 {
					t.Error("cooling key handed out as available to concurrent caller")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestBackupKeysOnlyWhenPrimaryExhausted(t *testing.T) {
	clock := newFakeClock()
	// Four free keys: three primary, the last one reserved as backup.
	pool := New(nil, []string{"f1", "f2", "f3", "f4"}, WithClock(clock.Now))

	for i := 0; i < 30; i++ {
		key, wait, ok := pool.Acquire()
		if !ok || wait != 0 {
			t.Fatalf("Acquire() = (%q, %v, %v), want available key", key, wait, ok)
		}
		if key == "f4" {
			t.Fatal("backup key selected while primary keys available")
		}
	}

	// Primary set fully cooling: the reserve takes over.
	pool.Cooldown("f1", 30*time.Second)
	pool.Cooldown("f2", 30*time.Second)
	pool.Cooldown("f3", 30*time.Second)

	key, wait, ok := pool.Acquire()
	if !ok || wait != 0 {
		t.Fatalf("Acquire() = (%q, %v, %v), want backup key", key, wait, ok)
	}
	if key != "f4" {
		t.Errorf("Acquire() = %q, want backup key f4", key)
	}
}

func TestAcquireAllCoolingReturnsSoonest(t *testing.T) {
	clock := newFakeClock()
	pool := New([]string{"keyA", "keyB"}, nil, WithClock(clock.Now))

	pool.Cooldown("keyA", 8*time.Second)
	pool.Cooldown("keyB", 3*time.Second)

	key, wait, ok := pool.Acquire()
	if !ok {
		t.Fatal("Acquire() ok = false, want true")
	}
	if key != "keyB" {
		t.Errorf("Acquire() key = %q, want keyB (soonest expiry)", key)
	}
	if wait != 3*time.Second {
		t.Errorf("Acquire() wait = %v, want 3s", wait)
	}
}

func TestAcquireEmptyPool(t *testing.T) {
	pool := New(nil, nil)
	if _, _, ok := pool.Acquire(); ok {
		t.Error("Acquire() ok = true for empty pool, want false")
	}
}

func TestRollingWindowReset(t *testing.T) {
	clock := newFakeClock()
	pool := New([]string{"keyA"}, nil, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		pool.Acquire()
	}
	if got := pool.Calls("keyA"); got != 5 {
		t.Fatalf("Calls(keyA) = %d, want 5", got)
	}

	clock.Advance(rollingWindow + time.Second)
	pool.Acquire()
	if got := pool.Calls("keyA"); got != 1 {
		t.Errorf("Calls(keyA) after window reset = %d, want 1", got)
	}
}

func TestPrimaryCount(t *testing.T) {
	tests := []struct {
		name string
		paid []string
		free []string
		want int
	}{
		{name: "paid only", paid: []string{"p1", "p2"}, want: 2},
		{name: "four free keys", free: []string{"f1", "f2", "f3", "f4"}, want: 3},
		{name: "one free key", free: []string{"f1"}, want: 1},
		{name: "two free keys keep one primary", free: []string{"f1", "f2"}, want: 1},
		{name: "mixed", paid: []string{"p1"}, free: []string{"f1", "f2", "f3", "f4"}, want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := New(tt.paid, tt.free)
			if got := pool.PrimaryCount(); got != tt.want {
				t.Errorf("PrimaryCount() = %d, want %d", got, tt.want)
			}
		})
	}
}
