package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/atinyakov/shortlinks/internal/storage"
	"github.com/atinyakov/shortlinks/internal/worker"
)

type MockRepo struct {
	mu     sync.Mutex
	Calls  [][]storage.ClickEvent
	FailOn map[int]bool
}

func (m *MockRepo) AppendClicks(_ context.Context, events []storage.ClickEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, append([]storage.ClickEvent(nil), events...))
	if m.FailOn[len(m.Calls)] {
		return errors.New("forced failure")
	}
	return nil
}

func (m *MockRepo) calls() [][]storage.ClickEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]storage.ClickEvent(nil), m.Calls...)
}

type fixedLocator struct {
	region string
	delay  time.Duration
}

func (f fixedLocator) Lookup(ctx context.Context, _ string) string {
	select {
	case <-time.After(f.delay):
		return f.region
	case <-ctx.Done():
		return storage.UnknownRegion
	}
}

func event(i int) storage.ClickEvent {
	return storage.ClickEvent{
		ID:            fmt.Sprintf("c%d", i),
		MappingID:     "m1",
		OccurredAt:    time.Now(),
		SourceAddress: "203.0.113.9",
	}
}

func stop(t *testing.T, w *worker.ClickWorker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))
}

func TestFlushRecords_BatchTrigger(t *testing.T) {
	repo := &MockRepo{}
	w := worker.NewClickWorker(zap.NewNop(), repo, fixedLocator{region: "Germany"}, worker.Options{
		BatchSize:     3,
		FlushInterval: time.Hour,
	})
	w.Start()

	for i := 0; i < 3; i++ {
		w.Record(event(i))
	}

	require.Eventually(t, func() bool { return len(repo.calls()) == 1 }, 2*time.Second, 10*time.Millisecond)

	batch := repo.calls()[0]
	require.Len(t, batch, 3)
	for _, e := range batch {
		assert.Equal(t, "Germany", e.Region)
	}

	stop(t, w)
}

func TestFlushRecords_TickerTrigger(t *testing.T) {
	repo := &MockRepo{}
	w := worker.NewClickWorker(zap.NewNop(), repo, fixedLocator{region: "France"}, worker.Options{
		BatchSize:     100,
		FlushInterval: 50 * time.Millisecond,
	})
	w.Start()

	w.Record(event(1))

	require.Eventually(t, func() bool { return len(repo.calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	stop(t, w)
}

func TestFlushRecords_SlowGeoYieldsUnknown(t *testing.T) {
	repo := &MockRepo{}
	w := worker.NewClickWorker(zap.NewNop(), repo, fixedLocator{region: "Late", delay: time.Second}, worker.Options{
		BatchSize:  1,
		GeoTimeout: 20 * time.Millisecond,
	})
	w.Start()

	w.Record(event(1))

	require.Eventually(t, func() bool { return len(repo.calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, storage.UnknownRegion, repo.calls()[0][0].Region)
	stop(t, w)
}

func TestFlushRecords_RetriesFailedBatch(t *testing.T) {
	repo := &MockRepo{FailOn: map[int]bool{1: true}}
	w := worker.NewClickWorker(zap.NewNop(), repo, fixedLocator{region: "Spain"}, worker.Options{
		BatchSize:     100,
		FlushInterval: 30 * time.Millisecond,
	})
	w.Start()

	w.Record(event(1))

	require.Eventually(t, func() bool { return len(repo.calls()) >= 2 }, 2*time.Second, 10*time.Millisecond)

	calls := repo.calls()
	assert.Equal(t, calls[0][0].ID, calls[1][0].ID)
	stop(t, w)
}

func TestFlushRecords_DropsAfterMaxAttempts(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	repo := &MockRepo{FailOn: map[int]bool{1: true, 2: true}}
	w := worker.NewClickWorker(zap.New(core), repo, nil, worker.Options{
		BatchSize:     100,
		FlushInterval: 30 * time.Millisecond,
		MaxAttempts:   2,
	})
	w.Start()

	w.Record(event(1))

	require.Eventually(t, func() bool {
		return logs.FilterMessage("dropping clicks after repeated failures").Len() == 1
	}, 2*time.Second, 10*time.Millisecond)

	w.Record(event(2))
	require.Eventually(t, func() bool { return len(repo.calls()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, repo.calls()[2], 1)
	assert.Equal(t, "c2", repo.calls()[2][0].ID)

	stop(t, w)
}

func TestRecord_FullQueueDoesNotBlock(t *testing.T) {
	repo := &MockRepo{}
	// worker never started, so the queue fills at once
	w := worker.NewClickWorker(zap.NewNop(), repo, nil, worker.Options{QueueSize: 1})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			w.Record(event(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked")
	}

	require.Eventually(t, func() bool { return len(repo.calls()) == 4 }, 2*time.Second, 10*time.Millisecond)
	for _, batch := range repo.calls() {
		assert.Equal(t, storage.UnknownRegion, batch[0].Region)
	}
	stop(t, w)
}

func TestStop_DrainsQueue(t *testing.T) {
	repo := &MockRepo{}
	w := worker.NewClickWorker(zap.NewNop(), repo, fixedLocator{region: "Italy"}, worker.Options{
		BatchSize:     100,
		FlushInterval: time.Hour,
	})
	w.Start()

	for i := 0; i < 7; i++ {
		w.Record(event(i))
	}
	stop(t, w)

	total := 0
	for _, batch := range repo.calls() {
		total += len(batch)
	}
	assert.Equal(t, 7, total)
}

func ids(batch []storage.ClickEvent) []string {
	out := make([]string, len(batch))
	for i, e := range batch {
		out[i] = e.ID
	}
	return out
}

func TestFlushRecords_FailedBatchWaitsForTicker(t *testing.T) {
	repo := &MockRepo{FailOn: map[int]bool{1: true}}
	w := worker.NewClickWorker(zap.NewNop(), repo, nil, worker.Options{
		BatchSize:     2,
		FlushInterval: 100 * time.Millisecond,
		MaxAttempts:   3,
	})
	w.Start()

	w.Record(event(0))
	w.Record(event(1))
	require.Eventually(t, func() bool { return len(repo.calls()) == 1 }, 2*time.Second, 5*time.Millisecond)

	w.Record(event(2))
	w.Record(event(3))

	require.Eventually(t, func() bool { return len(repo.calls()) == 3 }, 2*time.Second, 5*time.Millisecond)
	stop(t, w)

	calls := repo.calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"c0", "c1"}, ids(calls[0]))
	// new events go out on their own, the failed pair is retried once by the ticker
	assert.ElementsMatch(t, [][]string{{"c0", "c1"}, {"c2", "c3"}}, [][]string{ids(calls[1]), ids(calls[2])})
}

func TestRecord_RacingStopLosesNothing(t *testing.T) {
	repo := &MockRepo{}
	w := worker.NewClickWorker(zap.NewNop(), repo, nil, worker.Options{
		BatchSize:     1000,
		FlushInterval: time.Hour,
	})
	w.Start()

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for g := 0; g < writers; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				w.Record(event(g*perWriter + i))
			}
		}()
	}

	stop(t, w)
	wg.Wait()

	// late events are written inline, so nothing is pending now
	w.Record(event(writers * perWriter))

	seen := map[string]bool{}
	for _, batch := range repo.calls() {
		for _, e := range batch {
			seen[e.ID] = true
		}
	}
	assert.Len(t, seen, writers*perWriter+1)
}
