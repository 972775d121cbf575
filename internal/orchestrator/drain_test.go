package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDrainer(clk *clockwork.FakeClock, q *fakeQueue) *drainer {
	return &drainer{
		queue:    q,
		clock:    clk,
		interval: DefaultPollInterval,
		grace:    DefaultDrainGrace,
	}
}

func TestDrainer_WaitsForGraceAfterDrain(t *testing.T) {
	clk := clockwork.NewFakeClockAt(testEpoch)
	q := newFakeQueue(clk)
	d := newTestDrainer(clk, q)

	result := make(chan bool, 1)
	go func() {
		result <- d.wait(context.Background(), make(chan struct{}), discardLogger())
	}()

	// Очередь пуста с первого опроса, остаётся только grace.
	blockUntil(t, clk, 1)
	select {
	case <-result:
		t.Fatal("drain returned before grace period")
	default:
	}

	clk.Advance(DefaultDrainGrace)
	select {
	case ok := <-result:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("drain did not return after grace")
	}
	assert.Equal(t, 1, q.StatusCalls())
}

func TestDrainer_PollsAtFixedInterval(t *testing.T) {
	clk := clockwork.NewFakeClockAt(testEpoch)
	q := newFakeQueue(clk)
	q.busyPolls = 3
	d := newTestDrainer(clk, q)

	result := make(chan bool, 1)
	go func() {
		result <- d.wait(context.Background(), make(chan struct{}), discardLogger())
	}()

	for i := 0; i < 3; i++ {
		blockUntil(t, clk, 1)
		clk.Advance(DefaultPollInterval)
	}
	blockUntil(t, clk, 1)
	clk.Advance(DefaultDrainGrace)

	require.True(t, <-result)
	assert.Equal(t, 4, q.StatusCalls())
	assert.Equal(t, testEpoch.Add(3*DefaultPollInterval+DefaultDrainGrace), clk.Now())
}

func TestDrainer_ErrorsDoNotAbort(t *testing.T) {
	clk := clockwork.NewFakeClockAt(testEpoch)
	q := newFakeQueue(clk)
	q.statusErrs = 5
	d := newTestDrainer(clk, q)
	d.grace = 0

	result := make(chan bool, 1)
	go func() {
		result <- d.wait(context.Background(), make(chan struct{}), discardLogger())
	}()

	for i := 0; i < 5; i++ {
		blockUntil(t, clk, 1)
		clk.Advance(DefaultPollInterval)
	}

	require.True(t, <-result)
	assert.Equal(t, 6, q.StatusCalls())
}

func TestDrainer_CancelReturnsImmediately(t *testing.T) {
	clk := clockwork.NewFakeClockAt(testEpoch)
	q := newFakeQueue(clk)
	q.busy = true
	d := newTestDrainer(clk, q)

	done := make(chan struct{})
	result := make(chan bool, 1)
	go func() {
		result <- d.wait(context.Background(), done, discardLogger())
	}()

	blockUntil(t, clk, 1)
	close(done)

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("drain ignored cancellation")
	}
}

func TestDrainer_CancelledBeforeStart(t *testing.T) {
	clk := clockwork.NewFakeClockAt(testEpoch)
	q := newFakeQueue(clk)
	d := newTestDrainer(clk, q)

	done := make(chan struct{})
	close(done)

	assert.False(t, d.wait(context.Background(), done, discardLogger()))
	assert.Equal(t, 0, q.StatusCalls())
}
