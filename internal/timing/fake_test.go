package timing

import (
	"testing"
	"time"
)

func TestFakeClockAdvanceFiresInOrder(t *testing.T) {
	c := NewFakeClock(time.Unix(1000, 0))

	var fired []string
	c.AfterFunc(10*time.Second, func() { fired = append(fired, "b") })
	c.AfterFunc(3*time.Second, func() { fired = append(fired, "a") })

	c.Advance(2 * time.Second)
	if len(fired) != 0 {
		t.Fatalf("fired = %v before any timer was due", fired)
	}

	c.Advance(10 * time.Second)
	if len(fired) != 2 || fired[0] != "a" || fired[1] != "b" {
		t.Fatalf("fired = %v, want [a b]", fired)
	}
}

func TestFakeClockCallbackSchedulesFollowup(t *testing.T) {
	c := NewFakeClock(time.Unix(0, 0))

	var count int
	c.AfterFunc(1*time.Second, func() {
		count++
		c.AfterFunc(1*time.Second, func() { count++ })
	})

	// Both the original timer and the follow-up fall inside the window.
	c.Advance(5 * time.Second)
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestFakeClockStop(t *testing.T) {
	c := NewFakeClock(time.Unix(0, 0))

	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })

	if !tm.Stop() {
		t.Fatal("Stop() = false for pending timer")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if tm.Stop() {
		t.Fatal("second Stop() = true")
	}
}

func TestFakeClockNowTracksAdvance(t *testing.T) {
	start := time.Unix(500, 0)
	c := NewFakeClock(start)
	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Fatalf("Now() = %v, want %v", got, start.Add(90*time.Second))
	}
}

func TestFakeClockEqualFireTimesRunInScheduleOrder(t *testing.T) {
	c := NewFakeClock(time.Unix(0, 0))

	var fired []int
	for i := 1; i <= 3; i++ {
		i := i
		c.AfterFunc(time.Second, func() { fired = append(fired, i) })
	}
	c.Advance(time.Second)
	if len(fired) != 3 || fired[0] != 1 || fired[1] != 2 || fired[2] != 3 {
		t.Fatalf("fired = %v, want [1 2 3]", fired)
	}
}
