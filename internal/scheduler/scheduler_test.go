package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/track-enrichment/internal/enrich"
	"github.com/i474232898/track-enrichment/internal/pipeline"
)

type fakeRunner struct {
	mu       sync.Mutex
	errs     []error
	panics   int
	hold     time.Duration
	calls    int
	sleeping int
	ran      chan time.Time
	finished chan time.Time
}

func (f *fakeRunner) RunCycle(context.Context) (*enrich.BatchReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.ran != nil {
		select {
		case f.ran <- time.Now():
		default:
		}
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
		f.hold = 0
	}
	if f.finished != nil {
		defer func() {
			select {
			case f.finished <- time.Now():
			default:
			}
		}()
	}
	if f.panics > 0 {
		f.panics--
		panic("plot backend failed")
	}
	if len(f.errs) == 0 {
		return &enrich.BatchReport{}, nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return nil, err
}

func (f *fakeRunner) SetSleeping() {
	f.mu.Lock()
	f.sleeping++
	f.mu.Unlock()
}

func testConfig() Config {
	return Config{Interval: time.Hour, RetryDelay: 5 * time.Minute, MissingInputDelay: time.Minute}
}

func TestNextDelay(t *testing.T) {
	s := New(testConfig(), &fakeRunner{})

	missing := fmt.Errorf("read links: %w", pipeline.ErrMissingInput)
	if got := s.nextDelay(missing); got != time.Minute {
		t.Errorf("missing input delay = %v, want 1m", got)
	}
	stage := &pipeline.StageError{State: pipeline.Persisting, Err: errors.New("db down")}
	if got := s.nextDelay(stage); got != 5*time.Minute {
		t.Errorf("retry delay = %v, want 5m", got)
	}
}

func TestRunJobRetriesUntilSuccess(t *testing.T) {
	runner := &fakeRunner{errs: []error{
		pipeline.ErrMissingInput,
		&pipeline.StageError{State: pipeline.Downloading, Err: errors.New("boom")},
	}}
	s := New(testConfig(), runner)
	var waits []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	s.runJob(context.Background())

	if runner.calls != 3 {
		t.Fatalf("expected 3 cycles, got %d", runner.calls)
	}
	if len(waits) != 2 || waits[0] != time.Minute || waits[1] != 5*time.Minute {
		t.Errorf("unexpected retry waits %v", waits)
	}
	if runner.sleeping == 0 {
		t.Error("runner must be marked sleeping after the job")
	}
	if n := s.scheduler.Len(); n != 1 {
		t.Errorf("expected the next cycle to be scheduled, got %d jobs", n)
	}
}

func TestRunJobRecoversPanic(t *testing.T) {
	runner := &fakeRunner{panics: 1}
	s := New(testConfig(), runner)
	var waits []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	s.runJob(context.Background())

	if runner.calls != 2 {
		t.Fatalf("expected a retry after the panic, got %d cycles", runner.calls)
	}
	if len(waits) != 1 || waits[0] != 5*time.Minute {
		t.Errorf("a panicked cycle must wait the retry delay, got %v", waits)
	}
}

func TestServeSurvivesPanickingCycle(t *testing.T) {
	runner := &fakeRunner{panics: 1, ran: make(chan time.Time, 2)}
	s := New(testConfig(), runner)
	s.sleep = func(context.Context, time.Duration) error { return nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-runner.ran:
		case <-time.After(5 * time.Second):
			t.Fatalf("cycle %d did not run", i+1)
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeWaitsIntervalAfterCycleEnds(t *testing.T) {
	interval := 300 * time.Millisecond
	runner := &fakeRunner{
		hold:     2 * interval,
		ran:      make(chan time.Time, 2),
		finished: make(chan time.Time, 2),
	}
	s := New(Config{Interval: interval, RetryDelay: time.Minute, MissingInputDelay: time.Minute}, runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx)

	var firstEnd, secondStart time.Time
	for _, step := range []struct {
		ch  chan time.Time
		dst *time.Time
	}{
		{runner.ran, new(time.Time)},
		{runner.finished, &firstEnd},
		{runner.ran, &secondStart},
	} {
		select {
		case *step.dst = <-step.ch:
		case <-time.After(5 * time.Second):
			t.Fatal("cycle did not run")
		}
	}

	if gap := secondStart.Sub(firstEnd); gap < interval*3/4 {
		t.Errorf("next cycle started %v after the previous one finished, want about %v", gap, interval)
	}
}

func TestRunJobStopsOnCancel(t *testing.T) {
	runner := &fakeRunner{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	s := New(testConfig(), runner)

	ctx, cancel := context.WithCancel(context.Background())
	s.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	s.runJob(ctx)
	if runner.calls != 1 {
		t.Errorf("expected a single cycle before cancel, got %d", runner.calls)
	}
}

func TestServeRunsImmediatelyAndStops(t *testing.T) {
	runner := &fakeRunner{ran: make(chan time.Time, 1)}
	s := New(testConfig(), runner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	select {
	case <-runner.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not run on start")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
