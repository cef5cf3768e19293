package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"batch-agent/pkg/types"
)

func writeScript(t *testing.T, name, body string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), mode); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name       string
		output     string
		wantStatus types.StatusCode
		wantMsg    string
		wantErr    error
	}{
		{"success", "1,all good", types.StatusSuccess, "all good", nil},
		{"failure flag", "0,disk full", types.StatusFail, "disk full", nil},
		{"other flag", "2,partial", types.StatusFail, "partial", nil},
		{"no comma", "garbage", types.StatusFail, FormatErrorMessage, ErrOutputFormat},
		{"empty", "", types.StatusFail, FormatErrorMessage, ErrOutputFormat},
		{"trailing newline", "1,done\n", types.StatusSuccess, "done", nil},
		{"lines concatenated", "1,\r\nloaded 10 rows\n", types.StatusSuccess, "loaded 10 rows", nil},
		{"message keeps commas", "1,a,b,c", types.StatusSuccess, "a,b,c", nil},
		{"failure message keeps commas", "0,a,b", types.StatusFail, "a,b", nil},
		{"empty message", "1,", types.StatusSuccess, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg, err := ParseOutput([]byte(tt.output))
			if status != tt.wantStatus {
				t.Errorf("status = %v, want %v", status, tt.wantStatus)
			}
			if msg != tt.wantMsg {
				t.Errorf("message = %q, want %q", msg, tt.wantMsg)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunner_Run(t *testing.T) {
	r := NewRunner(NewDefaultRegistry("java", "sh"), 0)
	ctx := context.Background()

	tests := []struct {
		name       string
		script     string
		param      string
		wantStatus types.StatusCode
		wantMsg    string
		wantErr    error
	}{
		{
			name:       "success",
			script:     "echo '1,all good'\n",
			wantStatus: types.StatusSuccess,
			wantMsg:    "all good",
		},
		{
			name:       "failure",
			script:     "echo '0,disk full'\n",
			wantStatus: types.StatusFail,
			wantMsg:    "disk full",
		},
		{
			name:       "bad format",
			script:     "echo garbage\n",
			wantStatus: types.StatusFail,
			wantMsg:    FormatErrorMessage,
			wantErr:    ErrOutputFormat,
		},
		{
			name:       "stderr merged",
			script:     "echo '1,from stderr' >&2\n",
			wantStatus: types.StatusSuccess,
			wantMsg:    "from stderr",
		},
		{
			name:       "param passed",
			script:     "echo \"1,got $1\"\n",
			param:      "20240101",
			wantStatus: types.StatusSuccess,
			wantMsg:    "got 20240101",
		},
		{
			name:       "exit code ignored",
			script:     "echo '1,ok'\nexit 3\n",
			wantStatus: types.StatusSuccess,
			wantMsg:    "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScript(t, "job.sh", tt.script, 0644)

			res := r.Run(ctx, Task{Path: path, Param: tt.param})

			if res.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v", res.Status, tt.wantStatus)
			}
			if res.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", res.Message, tt.wantMsg)
			}
			if !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", res.Err, tt.wantErr)
			}
			if res.StartedAt.IsZero() || res.EndedAt.Before(res.StartedAt) {
				t.Errorf("bad timestamps: start=%v end=%v", res.StartedAt, res.EndedAt)
			}
		})
	}
}

func TestRunner_Run_Binary(t *testing.T) {
	r := NewRunner(NewDefaultRegistry("java", "sh"), 0)
	path := writeScript(t, "job", "#!/bin/sh\necho \"1,direct $1\"\n", 0755)

	res := r.Run(context.Background(), Task{Path: path, Param: "x"})

	if res.Status != types.StatusSuccess || res.Message != "direct x" {
		t.Errorf("Run() = %v %q, want SUCCESS %q", res.Status, res.Message, "direct x")
	}
}

func TestRunner_Run_LaunchError(t *testing.T) {
	r := NewRunner(NewDefaultRegistry("java", "sh"), 0)

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(t.TempDir(), "missing.bin")},
		{"not executable", writeScript(t, "job.bin", "echo '1,ok'\n", 0644)},
		{"empty path", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Run(context.Background(), Task{Path: tt.path})

			if res.Status != types.StatusFail {
				t.Errorf("Status = %v, want FAIL", res.Status)
			}
			if !errors.Is(res.Err, ErrLaunch) {
				t.Errorf("Err = %v, want ErrLaunch", res.Err)
			}
			if res.Message == "" {
				t.Error("Expected diagnostic message")
			}
			if res.ExitCode != -1 {
				t.Errorf("ExitCode = %d, want -1", res.ExitCode)
			}
		})
	}
}

func TestRunner_Run_Timeout(t *testing.T) {
	r := NewRunner(NewDefaultRegistry("java", "sh"), 100*time.Millisecond)
	path := writeScript(t, "slow.sh", "exec sleep 10\n", 0644)

	start := time.Now()
	res := r.Run(context.Background(), Task{Path: path})

	if !errors.Is(res.Err, ErrTimeout) {
		t.Fatalf("Err = %v, want ErrTimeout", res.Err)
	}
	if res.Status != types.StatusFail {
		t.Errorf("Status = %v, want FAIL", res.Status)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run() took %v, expected the timeout to stop it", elapsed)
	}
}

func TestResult_Apply(t *testing.T) {
	start := time.UnixMilli(1700000000000)
	res := Result{Status: types.StatusSuccess, Message: "ok", StartedAt: start, EndedAt: start.Add(time.Second)}

	var item types.JobResultItem
	res.Apply(&item)

	if item.Status != types.StatusSuccess || item.Message != "ok" {
		t.Errorf("Apply() = %v %q", item.Status, item.Message)
	}
	if item.Duration() != time.Second {
		t.Errorf("Duration() = %v, want 1s", item.Duration())
	}
}
