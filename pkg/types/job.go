// Package types defines the wire-level data structures shared by the batch agent
// and the management server.
package types

import (
	"strconv"
	"time"
)

// JobRequestItem is one job of a batch group as sent by the management server.
type JobRequestItem struct {
	// BatchLogID identifies the batch group run.
	BatchLogID string `json:"batGrpLogId"`

	// RetryCount is the retry round of the batch group (0 for the first attempt).
	RetryCount int `json:"batGrpRtyCnt"`

	// ProgramID identifies the batch program.
	ProgramID string `json:"batPrmId"`

	// Order is the 1-based execution order within the group.
	Order int `json:"excnOrd"`

	// Path is the artifact to execute.
	Path string `json:"path"`

	// Param is an optional single argument passed to the artifact.
	Param string `json:"param,omitempty"`

	// AdminEmail is the administrator contact for incident reports.
	AdminEmail string `json:"adminEmail,omitempty"`
}

// Millis is a timestamp encoded as epoch milliseconds on the wire.
type Millis time.Time

// MarshalJSON encodes the time as epoch milliseconds, or null for the zero time.
func (m Millis) MarshalJSON() ([]byte, error) {
	t := time.Time(m)
	if t.IsZero() {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, t.UnixMilli(), 10), nil
}

// UnmarshalJSON decodes epoch milliseconds. null leaves the zero time.
func (m *Millis) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*m = Millis{}
		return nil
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*m = Millis(time.UnixMilli(ms))
	return nil
}

// Time returns the underlying time.
func (m Millis) Time() time.Time {
	return time.Time(m)
}

// PathListing is the response to a path command.
type PathListing struct {
	Dirs  []string `json:"dir"`
	Files []string `json:"file"`
}

// Add records path as a directory or a file.
func (l *PathListing) Add(path string, dir bool) {
	if dir {
		l.Dirs = append(l.Dirs, path)
		return
	}
	l.Files = append(l.Files, path)
}
