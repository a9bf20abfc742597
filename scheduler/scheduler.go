package scheduler

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks.
type TaskFn func()

// TaskInfo is a point-in-time view of a registered ticker.
type TaskInfo struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	Runs         int64         `json:"runs"`
	Panics       int64         `json:"panics"`
	LastRun      time.Time     `json:"last_run"`
	LastDuration time.Duration `json:"last_duration"`
}

// Scheduler runs named repeating tasks. Cancelling a task stops future
// firings only; a run already in progress finishes normally.
type Scheduler struct {
	mu      sync.Mutex
	tickers map[string]*tickerEntry
	logger  *zap.Logger
	stopCh  chan struct{}
}

type tickerEntry struct {
	ticker *time.Ticker
	stopCh chan struct{}
	once   sync.Once

	statsMu sync.Mutex
	info    TaskInfo
}

func (e *tickerEntry) stop() {
	e.once.Do(func() { close(e.stopCh) })
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tickers: make(map[string]*tickerEntry),
		stopCh:  make(chan struct{}),
		logger:  logger,
	}
}

// AddTicker registers fn to run every interval and returns a function that
// cancels it. A task with the same name is replaced.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.tickers[name]; ok {
		old.stop()
		delete(s.tickers, name)
	}

	entry := &tickerEntry{
		ticker: time.NewTicker(interval),
		stopCh: make(chan struct{}),
		info:   TaskInfo{Name: name, Interval: interval},
	}
	s.tickers[name] = entry

	go s.loop(entry, fn)
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))

	return func() { s.removeEntry(name, entry) }
}

func (s *Scheduler) loop(entry *tickerEntry, fn TaskFn) {
	defer entry.ticker.Stop()
	for {
		select {
		case <-entry.ticker.C:
			// A stop that raced the tick wins.
			select {
			case <-entry.stopCh:
				return
			case <-s.stopCh:
				return
			default:
			}
			s.run(entry, fn)
		case <-entry.stopCh:
			return
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) run(entry *tickerEntry, fn TaskFn) {
	start := time.Now()
	panicked := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				s.logger.Error("scheduler task panicked",
					zap.String("task", entry.info.Name),
					zap.Any("recover", r))
			}
		}()
		fn()
	}()

	entry.statsMu.Lock()
	entry.info.Runs++
	if panicked {
		entry.info.Panics++
	}
	entry.info.LastRun = start
	entry.info.LastDuration = time.Since(start)
	entry.statsMu.Unlock()
}

func (s *Scheduler) removeEntry(name string, entry *tickerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.stop()
	if cur, ok := s.tickers[name]; ok && cur == entry {
		delete(s.tickers, name)
	}
}

// Remove stops and removes a ticker by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.tickers[name]; ok {
		entry.stop()
		delete(s.tickers, name)
	}
}

// Stop stops all tasks.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// ListTickers returns the sorted names of all registered tasks.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tickers))
	for name := range s.tickers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListTasks returns run statistics for every registered task, sorted by name.
func (s *Scheduler) ListTasks() []TaskInfo {
	s.mu.Lock()
	entries := make([]*tickerEntry, 0, len(s.tickers))
	for _, e := range s.tickers {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]TaskInfo, 0, len(entries))
	for _, e := range entries {
		e.statsMu.Lock()
		out = append(out, e.info)
		e.statsMu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
