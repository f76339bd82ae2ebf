package batch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStream_DeliversResultsThenReport(t *testing.T) {
	_, exec := newTestExecutor(t)

	h := exec.Stream(context.Background(), baseRequest(1, 2, 3))

	var ids []int64
	for r := range h.Results() {
		ids = append(ids, r.ID)
	}

	report, err := h.Wait()
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(ids) != 3 || report.Applied != 3 {
		t.Errorf("streamed %v, applied %d", ids, report.Applied)
	}
}

func TestStream_WaitWithoutDraining(t *testing.T) {
	_, exec := newTestExecutor(t)

	ids := make([]int64, 40)
	for i := range ids {
		ids[i] = int64(i + 1)
	}

	report, err := exec.Stream(context.Background(), baseRequest(ids...)).Wait()
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if report.Applied != 40 {
		t.Errorf("Applied = %d, want 40", report.Applied)
	}
}

func TestStream_ValidationError(t *testing.T) {
	_, exec := newTestExecutor(t)

	h := exec.Stream(context.Background(), baseRequest())
	if _, ok := <-h.Results(); ok {
		t.Error("no results expected for a rejected request")
	}

	var vErr *ValidationError
	if _, err := h.Wait(); !errors.As(err, &vErr) {
		t.Errorf("Wait() error = %v, want *ValidationError", err)
	}
}

func TestStream_CancelWithoutDraining(t *testing.T) {
	_, exec := newTestExecutor(t)

	ids := make([]int64, 100)
	for i := range ids {
		ids[i] = int64(i + 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := exec.Stream(ctx, baseRequest(ids...))
	if _, ok := <-h.Results(); !ok {
		t.Fatal("expected at least one result")
	}
	cancel()

	// Nobody reads Results from here on
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("run still blocked after cancellation")
	}

	report, err := h.Wait()
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
	if report.State != StateAborted {
		t.Errorf("State = %s, want %s", report.State, StateAborted)
	}
	if len(report.Results) == 0 || len(report.Results) >= len(ids) {
		t.Errorf("Results = %d, want a partial run", len(report.Results))
	}
}
