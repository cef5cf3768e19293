package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"batch-agent/pkg/executor"
	"batch-agent/pkg/types"
)

// mockRunner returns canned results keyed by artifact path and records the
// tasks it was asked to run.
type mockRunner struct {
	mu      sync.Mutex
	results map[string]executor.Result
	ran     []executor.Task
}

func newMockRunner() *mockRunner {
	return &mockRunner{results: make(map[string]executor.Result)}
}

func (m *mockRunner) Run(ctx context.Context, task executor.Task) executor.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ran = append(m.ran, task)
	if res, ok := m.results[task.Path]; ok {
		return res
	}
	now := time.Now()
	res := executor.Success("ok")
	res.StartedAt, res.EndedAt = now, now
	return res
}

func (m *mockRunner) Ran() []executor.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]executor.Task(nil), m.ran...)
}

// recordingReporter keeps every reported result.
type recordingReporter struct {
	mu      sync.Mutex
	results []types.JobResultItem
}

func (r *recordingReporter) Report(ctx context.Context, result *types.JobResultItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, *result)
}

func (r *recordingReporter) Results() []types.JobResultItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.JobResultItem(nil), r.results...)
}

func makeBatch(n int) []types.JobRequestItem {
	items := make([]types.JobRequestItem, n)
	for i := range items {
		items[i] = types.JobRequestItem{
			BatchLogID: "LOG-1",
			RetryCount: 1,
			ProgramID:  fmt.Sprintf("PRM%02d", i+1),
			Order:      i + 1,
			Path:       fmt.Sprintf("/opt/batch/job%d.sh", i+1),
			AdminEmail: "admin@example.com",
		}
	}
	return items
}

func TestBatchRunner_Cascade(t *testing.T) {
	for n := 1; n <= 5; n++ {
		// k is the 1-based position of the first failure, 0 for none.
		for k := 0; k <= n; k++ {
			t.Run(fmt.Sprintf("n=%d/fail_at=%d", n, k), func(t *testing.T) {
				items := makeBatch(n)
				runner := newMockRunner()
				if k > 0 {
					runner.results[items[k-1].Path] = executor.Failure("disk full", nil)
				}
				reporter := &recordingReporter{}

				results := NewBatchRunner(runner, reporter).Run(context.Background(), items)

				wantRan := n
				if k > 0 {
					wantRan = k
				}
				if got := len(runner.Ran()); got != wantRan {
					t.Fatalf("ran %d items, want %d", got, wantRan)
				}

				reported := reporter.Results()
				if len(reported) != n || len(results) != n {
					t.Fatalf("reported %d, returned %d, want %d", len(reported), len(results), n)
				}

				for i, r := range reported {
					order := i + 1
					if r.Order != order || r.ProgramID != items[i].ProgramID || r.BatchLogID != "LOG-1" || r.RetryCount != 1 {
						t.Errorf("item %d: identifying fields not copied: %+v", order, r)
					}
					if r.AdminEmail != "admin@example.com" {
						t.Errorf("item %d: AdminEmail = %q", order, r.AdminEmail)
					}
					if bool(r.Last) != (order == n) {
						t.Errorf("item %d: Last = %v, want %v", order, r.Last, order == n)
					}

					switch {
					case k == 0 || order < k:
						if r.Status != types.StatusSuccess {
							t.Errorf("item %d: Status = %v, want SUCCESS", order, r.Status)
						}
					case order == k:
						if r.Status != types.StatusFail || r.Message != "disk full" {
							t.Errorf("item %d: got %v %q, want FAIL %q", order, r.Status, r.Message, "disk full")
						}
					default:
						if r.Status != types.StatusFail || r.Message != SkippedMessage {
							t.Errorf("item %d: got %v %q, want skipped FAIL", order, r.Status, r.Message)
						}
					}
				}
			})
		}
	}
}

func TestBatchRunner_PassesParam(t *testing.T) {
	runner := newMockRunner()
	items := []types.JobRequestItem{{BatchLogID: "L", ProgramID: "P", Order: 1, Path: "run.jar", Param: "20240101"}}

	NewBatchRunner(runner, &recordingReporter{}).Run(context.Background(), items)

	ran := runner.Ran()
	if len(ran) != 1 || ran[0].Param != "20240101" || ran[0].Path != "run.jar" {
		t.Errorf("ran = %+v, want run.jar with param", ran)
	}
}

func TestBatchRunner_ReportsInOrder(t *testing.T) {
	runner := newMockRunner()
	reporter := &recordingReporter{}
	items := makeBatch(3)
	// Orders arrive pre-sorted by the sender and are never re-sorted.
	items[0].Order, items[2].Order = 3, 1

	NewBatchRunner(runner, reporter).Run(context.Background(), items)

	got := reporter.Results()
	if got[0].Order != 3 || got[1].Order != 2 || got[2].Order != 1 {
		t.Errorf("orders = %d,%d,%d, want 3,2,1", got[0].Order, got[1].Order, got[2].Order)
	}
	if !got[0].Last || got[2].Last {
		t.Errorf("Last flags follow excnOrd == size, got %v,%v,%v", got[0].Last, got[1].Last, got[2].Last)
	}
}

func TestBatchRunner_Empty(t *testing.T) {
	reporter := &recordingReporter{}
	results := NewBatchRunner(newMockRunner(), reporter).Run(context.Background(), nil)
	if len(results) != 0 || len(reporter.Results()) != 0 {
		t.Errorf("empty batch produced results")
	}
}
