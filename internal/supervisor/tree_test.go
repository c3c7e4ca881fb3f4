package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

type countingService struct {
	starts  atomic.Int32
	failFor int32
}

func (s *countingService) Serve(ctx context.Context) error {
	n := s.starts.Add(1)
	if n <= s.failFor {
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

var _ suture.Service = (*countingService)(nil)

func TestTreeRestartsFailedService(t *testing.T) {
	tree := NewTreeWithLogger("test", slog.New(slog.DiscardHandler), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})
	pipelineSvc := &countingService{failFor: 2}
	apiSvc := &countingService{}
	tree.AddPipelineService(pipelineSvc)
	tree.AddAPIService(apiSvc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tree.Serve(ctx) }()

	deadline := time.After(5 * time.Second)
	for pipelineSvc.starts.Load() < 3 || apiSvc.starts.Load() < 1 {
		select {
		case <-deadline:
			t.Fatalf("services not started: pipeline=%d api=%d", pipelineSvc.starts.Load(), apiSvc.starts.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
	if apiSvc.starts.Load() != 1 {
		t.Errorf("api service must not restart when the pipeline fails, got %d starts", apiSvc.starts.Load())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop")
	}
}
