package batch

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/plex-added-date/internal/testutil"
	"github.com/Sternrassler/plex-added-date/pkg/library"
	"github.com/Sternrassler/plex-added-date/pkg/selection"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func newTestExecutor(t *testing.T) (*testutil.MockPlex, *Executor) {
	t.Helper()
	mock := testutil.NewMockPlex()
	t.Cleanup(mock.Close)
	lib := library.New(testutil.NewPlexClient(t, mock, "tok"), zerolog.Nop())
	return mock, NewExecutor(lib, zerolog.Nop())
}

func baseRequest(ids ...int64) Request {
	return Request{
		SectionID: 1,
		Type:      library.TypeMovie,
		Date:      "2021-06-01",
		Location:  time.UTC,
		IDs:       ids,
	}
}

func outcomes(report *Report) []Outcome {
	out := make([]Outcome, len(report.Results))
	for i, r := range report.Results {
		out[i] = r.Outcome
	}
	return out
}

func TestExecutor_ExplicitIDs(t *testing.T) {
	mock, exec := newTestExecutor(t)

	report, err := exec.Run(context.Background(), baseRequest(12345, 67890), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.State != StateCompleted {
		t.Errorf("State = %s, want completed", report.State)
	}
	if diff := cmp.Diff([]Outcome{OutcomeApplied, OutcomeApplied}, outcomes(report)); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}
	if report.Applied != 2 || report.Failed != 0 || !report.Succeeded() {
		t.Errorf("report = %+v", report)
	}

	want := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC).Unix()
	updates := mock.Updates()
	if len(updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(updates))
	}
	for i, id := range []int64{12345, 67890} {
		if updates[i].ID != id || updates[i].AddedAt != want || !updates[i].Locked {
			t.Errorf("updates[%d] = %+v, want id %d at %d locked", i, updates[i], id, want)
		}
	}
}

func TestExecutor_NoLock(t *testing.T) {
	mock, exec := newTestExecutor(t)
	req := baseRequest(1)
	req.NoLock = true

	if _, err := exec.Run(context.Background(), req, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if updates := mock.Updates(); len(updates) != 1 || updates[0].Locked {
		t.Errorf("updates = %+v, want one unlocked update", updates)
	}
}

func TestExecutor_DryRun(t *testing.T) {
	mock, exec := newTestExecutor(t)
	req := baseRequest(1, 2, 3, 4, 5)
	req.DryRun = true
	req.MaxItems = 2

	var streamed []int64
	report, err := exec.Run(context.Background(), req, func(r Result) {
		streamed = append(streamed, r.ID)
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if mock.RequestCount() != 0 {
		t.Errorf("dry run made %d requests, want 0", mock.RequestCount())
	}
	if report.Skipped != 5 || len(report.Results) != 5 {
		t.Errorf("Skipped = %d, results = %d, want 5 (cap ignored in dry run)", report.Skipped, len(report.Results))
	}
	for _, r := range report.Results {
		if r.Outcome != OutcomeSkipped {
			t.Errorf("id %d outcome = %s, want skipped-dry-run", r.ID, r.Outcome)
		}
	}
	if diff := cmp.Diff([]int64{1, 2, 3, 4, 5}, streamed); diff != "" {
		t.Errorf("streamed ids mismatch (-want +got):\n%s", diff)
	}
}

func TestExecutor_MaxItems(t *testing.T) {
	mock, exec := newTestExecutor(t)
	req := baseRequest(1, 2, 3, 4, 5)
	req.MaxItems = 3

	report, err := exec.Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Results) != 3 || report.Planned != 3 {
		t.Errorf("results = %d, planned = %d, want 3", len(report.Results), report.Planned)
	}
	if len(mock.Updates()) != 3 {
		t.Errorf("updates = %d, want 3", len(mock.Updates()))
	}
	if last := report.Results[2]; last.ID != 3 || last.Index != 3 || last.Of != 3 {
		t.Errorf("last result = %+v", last)
	}
}

func TestExecutor_RetriedRateLimitIsApplied(t *testing.T) {
	mock, exec := newTestExecutor(t)
	mock.ScriptUpdate(7, http.StatusTooManyRequests)

	report, err := exec.Run(context.Background(), baseRequest(7), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Results[0].Outcome != OutcomeApplied {
		t.Errorf("outcome = %s, want applied", report.Results[0].Outcome)
	}
	if len(mock.Updates()) != 2 {
		t.Errorf("attempts = %d, want 2", len(mock.Updates()))
	}
}

func TestExecutor_PermanentFailureContinues(t *testing.T) {
	mock, exec := newTestExecutor(t)
	mock.ScriptUpdate(2, http.StatusNotFound)

	report, err := exec.Run(context.Background(), baseRequest(1, 2, 3), nil)
	if err != nil {
		t.Fatalf("Run() error = %v, per-item failures must not fail the run", err)
	}

	if diff := cmp.Diff([]Outcome{OutcomeApplied, OutcomeFailed, OutcomeApplied}, outcomes(report)); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}
	failed := report.Results[1]
	if failed.StatusCode != http.StatusNotFound || failed.Error == "" || failed.Err == nil {
		t.Errorf("failed result = %+v", failed)
	}

	attempts := 0
	for _, u := range mock.Updates() {
		if u.ID == 2 {
			attempts++
		}
	}
	if attempts != 1 {
		t.Errorf("attempts for 404 item = %d, want 1", attempts)
	}
	if report.Succeeded() {
		t.Error("Succeeded() = true with a failed item")
	}
	if report.State != StateCompleted {
		t.Errorf("State = %s, want completed", report.State)
	}
}

func TestExecutor_TransientExhaustionFailsItem(t *testing.T) {
	mock, exec := newTestExecutor(t)
	mock.ScriptUpdate(4, 503, 503, 503)

	report, err := exec.Run(context.Background(), baseRequest(4, 5), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if diff := cmp.Diff([]Outcome{OutcomeFailed, OutcomeApplied}, outcomes(report)); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}
	if report.Results[0].StatusCode != 503 {
		t.Errorf("StatusCode = %d, want 503", report.Results[0].StatusCode)
	}
}

func TestExecutor_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		field  string
	}{
		{name: "bad date", mutate: func(r *Request) { r.Date = "2021-13-45" }, field: "date"},
		{name: "empty date", mutate: func(r *Request) { r.Date = "" }, field: "date"},
		{name: "missing section", mutate: func(r *Request) { r.SectionID = 0 }, field: "section_id"},
		{name: "bad type", mutate: func(r *Request) { r.Type = 0 }, field: "type"},
		{name: "no ids", mutate: func(r *Request) { r.IDs = nil }, field: "ids"},
		{name: "empty selection", mutate: func(r *Request) { r.IDs = nil; r.Selection = selection.New() }, field: "ids"},
		{name: "negative id", mutate: func(r *Request) { r.IDs = []int64{1, -2} }, field: "ids"},
		{name: "negative cap", mutate: func(r *Request) { r.MaxItems = -1 }, field: "max_items"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, exec := newTestExecutor(t)
			req := baseRequest(1, 2)
			tt.mutate(&req)

			report, err := exec.Run(context.Background(), req, nil)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Run() error = %v, want *ValidationError", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", vErr.Field, tt.field)
			}
			if report.State != StateAborted || len(report.Results) != 0 {
				t.Errorf("report = %+v, want aborted with no results", report)
			}
			if mock.RequestCount() != 0 {
				t.Errorf("requests = %d, want 0", mock.RequestCount())
			}
		})
	}
}

func TestExecutor_SelectionAndDedup(t *testing.T) {
	mock, exec := newTestExecutor(t)

	sel := selection.New()
	sel.AddItem(library.Item{ID: 9, Title: "Heat"})
	sel.Add(3)

	req := baseRequest()
	req.Selection = sel

	report, err := exec.Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Results[0].ID != 9 || report.Results[0].Title != "Heat" || report.Results[1].ID != 3 {
		t.Errorf("results = %+v", report.Results)
	}

	mock.Reset()
	req = baseRequest(5, 5, 6, 5)
	req.Selection = sel
	report, _ = exec.Run(context.Background(), req, nil)

	ids := make([]int64, 0, len(report.Results))
	for _, r := range report.Results {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]int64{5, 6}, ids); diff != "" {
		t.Errorf("explicit ids should win and be deduped (-want +got):\n%s", diff)
	}
}

func TestExecutor_Throttle(t *testing.T) {
	_, exec := newTestExecutor(t)
	req := baseRequest(1, 2, 3)
	req.Throttle.Delay = 25 * time.Millisecond

	start := time.Now()
	if _, err := exec.Run(context.Background(), req, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("3 throttled items took %v, want at least 50ms", elapsed)
	}
}

func TestExecutor_Cancellation(t *testing.T) {
	mock, exec := newTestExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	report, err := exec.Run(ctx, baseRequest(1, 2, 3, 4), func(r Result) {
		if r.Index == 2 {
			cancel()
		}
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if report.State != StateAborted {
		t.Errorf("State = %s, want aborted", report.State)
	}
	if len(report.Results) != 2 || report.Applied != 2 {
		t.Errorf("results = %d, applied = %d, want 2 partial results", len(report.Results), report.Applied)
	}
	if len(mock.Updates()) != 2 {
		t.Errorf("updates = %d, no item may start after cancellation", len(mock.Updates()))
	}
}

func TestExecutor_CancelDuringThrottle(t *testing.T) {
	_, exec := newTestExecutor(t)
	req := baseRequest(1, 2)
	req.Throttle.Delay = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	report, err := exec.Run(ctx, req, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want DeadlineExceeded", err)
	}
	if len(report.Results) != 1 {
		t.Errorf("results = %d, want 1", len(report.Results))
	}
}

func TestParseDate(t *testing.T) {
	loc := time.FixedZone("CEST", 2*3600)
	got, err := ParseDate(" 2021-06-01 ", loc)
	if err != nil {
		t.Fatalf("ParseDate() error = %v", err)
	}
	if want := time.Date(2021, 6, 1, 0, 0, 0, 0, loc); !got.Equal(want) {
		t.Errorf("ParseDate() = %v, want %v", got, want)
	}
	if got.Unix() != 1622498400 {
		t.Errorf("Unix() = %d, want 1622498400", got.Unix())
	}

	for _, bad := range []string{"01.06.2021", "2021-02-30", "yesterday"} {
		if _, err := ParseDate(bad, loc); err == nil {
			t.Errorf("ParseDate(%q) expected error", bad)
		}
	}
}
