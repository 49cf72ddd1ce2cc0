package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceFiresInDeadlineOrder(t *testing.T) {
	f := NewFake(time.Unix(0, 0))

	var order []string
	f.AfterFunc(200*time.Millisecond, func() { order = append(order, "b") })
	f.AfterFunc(100*time.Millisecond, func() { order = append(order, "a") })

	f.Advance(50 * time.Millisecond)
	assert.Empty(t, order)

	f.Advance(200 * time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 0, f.PendingTimers())
}

func TestFake_StopPreventsFiring(t *testing.T) {
	f := NewFake(time.Unix(0, 0))

	fired := false
	timer := f.AfterFunc(100*time.Millisecond, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	f.Advance(time.Second)
	assert.False(t, fired)
}

func TestFake_ResetReschedules(t *testing.T) {
	f := NewFake(time.Unix(0, 0))

	count := 0
	timer := f.AfterFunc(100*time.Millisecond, func() { count++ })

	timer.Reset(500 * time.Millisecond)
	f.Advance(200 * time.Millisecond)
	assert.Equal(t, 0, count)

	f.Advance(400 * time.Millisecond)
	assert.Equal(t, 1, count)
}

func TestFake_CallbackMaySchedule(t *testing.T) {
	f := NewFake(time.Unix(0, 0))

	var order []string
	f.AfterFunc(100*time.Millisecond, func() {
		order = append(order, "first")
		f.AfterFunc(100*time.Millisecond, func() { order = append(order, "second") })
	})

	f.Advance(300 * time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestFake_NowTracksAdvance(t *testing.T) {
	start := time.Unix(1000, 0)
	f := NewFake(start)

	f.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), f.Now())
}

func TestReal_AfterFunc(t *testing.T) {
	c := New()

	done := make(chan struct{})
	c.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}
