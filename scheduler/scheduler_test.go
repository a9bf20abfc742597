package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newNop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

func TestAddTicker_Fires(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	var count int32
	s.AddTicker("tick", 20*time.Millisecond, func() {
		atomic.AddInt32(&count, 1)
	})

	time.Sleep(120 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&count), int32(3))
}

func TestAddTicker_Replaces(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	var count1, count2 int32
	s.AddTicker("task", 20*time.Millisecond, func() { atomic.AddInt32(&count1, 1) })
	time.Sleep(30 * time.Millisecond)
	s.AddTicker("task", 20*time.Millisecond, func() { atomic.AddInt32(&count2, 1) })
	time.Sleep(80 * time.Millisecond)

	// Old ticker should have stopped, new one should be running
	snap1 := atomic.LoadInt32(&count1)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, snap1, atomic.LoadInt32(&count1), "old ticker must stop after replacement")
	assert.Positive(t, atomic.LoadInt32(&count2))
}

func TestRemove_Ticker(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	var count int32
	s.AddTicker("task", 20*time.Millisecond, func() { atomic.AddInt32(&count, 1) })
	time.Sleep(50 * time.Millisecond)
	s.Remove("task")
	snap := atomic.LoadInt32(&count)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, snap, atomic.LoadInt32(&count), "ticker must stop after Remove")
}

func TestRemove_NonExistent(t *testing.T) {
	s := New(newNop())
	defer s.Stop()
	// Must not panic
	s.Remove("nope")
}

func TestStop_StopsAllTickers(t *testing.T) {
	s := New(newNop())

	var c1, c2 int32
	s.AddTicker("a", 20*time.Millisecond, func() { atomic.AddInt32(&c1, 1) })
	s.AddTicker("b", 20*time.Millisecond, func() { atomic.AddInt32(&c2, 1) })
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	// Give goroutines time to observe the stop signal before snapping counts.
	time.Sleep(30 * time.Millisecond)
	snap1, snap2 := atomic.LoadInt32(&c1), atomic.LoadInt32(&c2)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, snap1, atomic.LoadInt32(&c1))
	assert.Equal(t, snap2, atomic.LoadInt32(&c2))
}

func TestStop_Idempotent(t *testing.T) {
	s := New(newNop())
	s.Stop()
	s.Stop() // must not panic on double-stop
}

func TestListTickers(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	require.Empty(t, s.ListTickers())
	s.AddTicker("alpha", time.Hour, func() {})
	s.AddTicker("beta", time.Hour, func() {})
	names := s.ListTickers()
	assert.Len(t, names, 2)
	assert.Contains(t, names, "alpha")
	assert.Contains(t, names, "beta")
}

func TestListTickers_AfterRemove(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	s.AddTicker("x", time.Hour, func() {})
	s.AddTicker("y", time.Hour, func() {})
	s.Remove("x")
	assert.Equal(t, []string{"y"}, s.ListTickers())
}

func TestTicker_PanicRecovery(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	s.AddTicker("panic", 20*time.Millisecond, func() {
		panic("oops")
	})
	// The loop survives the panic and keeps firing.
	require.Eventually(t, func() bool {
		tasks := s.ListTasks()
		return len(tasks) == 1 && tasks[0].Panics >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestAddTicker_CancelFunc(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	var count int32
	cancel := s.AddTicker("interest", 20*time.Millisecond, func() { atomic.AddInt32(&count, 1) })
	time.Sleep(50 * time.Millisecond)
	cancel()
	cancel()
	snap := atomic.LoadInt32(&count)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, snap, atomic.LoadInt32(&count))
	assert.Empty(t, s.ListTickers())
}

func TestCancel_StaleHandleKeepsReplacement(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	cancelOld := s.AddTicker("task", time.Hour, func() {})
	s.AddTicker("task", time.Hour, func() {})
	cancelOld()
	assert.Equal(t, []string{"task"}, s.ListTickers())
}

func TestCancel_DoesNotAbortRunInFlight(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	started := make(chan struct{})
	release := make(chan struct{})
	var finished int32
	var once sync.Once
	cancel := s.AddTicker("slow", 10*time.Millisecond, func() {
		once.Do(func() { close(started) })
		<-release
		atomic.StoreInt32(&finished, 1)
	})
	<-started
	cancel()
	close(release)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&finished) == 1 }, time.Second, 5*time.Millisecond)
}

func TestListTasks_Stats(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	s.AddTicker("b", 10*time.Millisecond, func() {})
	s.AddTicker("a", time.Hour, func() {})
	require.Eventually(t, func() bool {
		tasks := s.ListTasks()
		return len(tasks) == 2 && tasks[1].Runs > 0
	}, time.Second, 5*time.Millisecond)

	tasks := s.ListTasks()
	assert.Equal(t, "a", tasks[0].Name)
	assert.Equal(t, time.Hour, tasks[0].Interval)
	assert.Zero(t, tasks[0].Runs)
	assert.False(t, tasks[1].LastRun.IsZero())
}
