package syncer

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"arvera/internal/booking"
)

type fakeSignal struct {
	token string
	err   error
	calls int32
}

func (f *fakeSignal) CheckUpdate(ctx context.Context) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.token, f.err
}

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func countingReload(err error) (ReloadFunc, *int32) {
	var calls int32
	return func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return err
	}, &calls
}

func TestTickReloadsOnChange(t *testing.T) {
	signal := &fakeSignal{token: "t1"}
	reload, reloads := countingReload(nil)
	c := New(signal, reload, time.Second, testLogger())

	c.Tick(context.Background())
	assert.Equal(t, int32(1), *reloads)
	assert.Equal(t, "t1", c.LastToken())

	// Same token again: no reload.
	c.Tick(context.Background())
	assert.Equal(t, int32(1), *reloads)

	// Token moved: reload again.
	signal.token = "t2"
	c.Tick(context.Background())
	assert.Equal(t, int32(2), *reloads)
	assert.Equal(t, "t2", c.LastToken())
}

func TestTickSignalFailure(t *testing.T) {
	signal := &fakeSignal{err: errors.New("unreachable")}
	reload, reloads := countingReload(nil)
	c := New(signal, reload, time.Second, testLogger())

	c.Tick(context.Background())
	assert.Equal(t, int32(0), *reloads)
	assert.Empty(t, c.LastToken())
}

func TestFailedReloadRetriesNextTick(t *testing.T) {
	signal := &fakeSignal{token: "t1"}

	var attempts int32
	reload := func(ctx context.Context) error {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return errors.New("backend down")
		}
		return nil
	}
	c := New(signal, reload, time.Second, testLogger())

	// First tick fails the reload, so the token must not advance.
	c.Tick(context.Background())
	assert.Empty(t, c.LastToken())

	// Unchanged token still retries because it was never recorded.
	c.Tick(context.Background())
	assert.Equal(t, int32(2), attempts)
	assert.Equal(t, "t1", c.LastToken())
}

func TestSupersededReloadRetries(t *testing.T) {
	signal := &fakeSignal{token: "t1"}
	reload, _ := countingReload(booking.ErrSuperseded)
	c := New(signal, reload, time.Second, testLogger())

	c.Tick(context.Background())
	assert.Empty(t, c.LastToken(), "a superseded reload must not record the token")
}

func TestVisibilityGate(t *testing.T) {
	signal := &fakeSignal{token: "t1"}
	reload, reloads := countingReload(nil)
	c := New(signal, reload, time.Second, testLogger())

	c.SetVisible(context.Background(), false)
	c.Tick(context.Background())
	assert.Equal(t, int32(0), atomic.LoadInt32(&signal.calls), "hidden tab must not poll")
	assert.Equal(t, int32(0), *reloads)

	// Becoming visible runs an immediate check without waiting for a tick.
	signal.token = "t2"
	c.SetVisible(context.Background(), true)
	assert.Equal(t, int32(1), atomic.LoadInt32(&signal.calls))
	assert.Equal(t, int32(1), *reloads)
	assert.Equal(t, "t2", c.LastToken())

	// Setting visible while already visible does not re-check.
	c.SetVisible(context.Background(), true)
	assert.Equal(t, int32(1), atomic.LoadInt32(&signal.calls))
}

func TestTickDebouncesWhileReloading(t *testing.T) {
	signal := &fakeSignal{token: "t1"}

	inReload := make(chan struct{})
	release := make(chan struct{})
	reload := func(ctx context.Context) error {
		close(inReload)
		<-release
		return nil
	}
	c := New(signal, reload, time.Second, testLogger())

	done := make(chan struct{})
	go func() {
		c.Tick(context.Background())
		close(done)
	}()
	<-inReload

	// A tick arriving mid-reload is dropped, not queued.
	c.Tick(context.Background())
	assert.Equal(t, int32(1), atomic.LoadInt32(&signal.calls))

	close(release)
	<-done
	assert.Equal(t, "t1", c.LastToken())
}

type blockingSignal struct {
	inCheck chan struct{}
	release chan struct{}
	calls   int32
}

func (b *blockingSignal) CheckUpdate(ctx context.Context) (string, error) {
	atomic.AddInt32(&b.calls, 1)
	close(b.inCheck)
	<-b.release
	return "t1", nil
}

func TestOverlappingTicksRunOneCycle(t *testing.T) {
	signal := &blockingSignal{
		inCheck: make(chan struct{}),
		release: make(chan struct{}),
	}
	reload, reloads := countingReload(nil)
	c := New(signal, reload, time.Second, testLogger())

	done := make(chan struct{})
	go func() {
		c.Tick(context.Background())
		close(done)
	}()
	<-signal.inCheck

	// A tick overlapping the in-flight signal fetch is dropped as well, so a
	// visibility-triggered check never doubles up with a ticker one and only
	// one reload ever records a token.
	c.Tick(context.Background())
	assert.Equal(t, int32(1), atomic.LoadInt32(&signal.calls))
	assert.Equal(t, int32(0), *reloads)
	assert.Empty(t, c.LastToken())

	close(signal.release)
	<-done
	assert.Equal(t, int32(1), *reloads)
	assert.Equal(t, "t1", c.LastToken())
}

func TestRunStopsOnCancel(t *testing.T) {
	signal := &fakeSignal{token: "t1"}
	reload, _ := countingReload(nil)
	c := New(signal, reload, 5*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return c.LastToken() == "t1"
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestSetInterval(t *testing.T) {
	signal := &fakeSignal{token: "t1"}
	reload, _ := countingReload(nil)
	c := New(signal, reload, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	// With an hour-long default interval the only way the token advances is
	// the tightened interval taking effect.
	c.SetInterval(5 * time.Millisecond)
	assert.Eventually(t, func() bool {
		return c.LastToken() == "t1"
	}, time.Second, 5*time.Millisecond)

	c.SetInterval(0) // ignored
}
