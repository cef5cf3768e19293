package types

import (
	"fmt"
	"time"
)

// StatusCode is the outcome of a batch program as understood by the management server.
type StatusCode string

const (
	StatusSuccess StatusCode = "BSSC"
	StatusFail    StatusCode = "BSFL"
	// StatusRunning and StatusWait are owned by the management server; the agent never emits them.
	StatusRunning StatusCode = "BSRN"
	StatusWait    StatusCode = "BSWT"
)

// String returns the human readable name of a StatusCode.
func (s StatusCode) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFail:
		return "FAIL"
	case StatusRunning:
		return "RUNNING"
	case StatusWait:
		return "WAIT"
	default:
		return "UNKNOWN"
	}
}

// YesNo is a boolean encoded as "Y" or "N".
type YesNo bool

// MarshalText implements encoding.TextMarshaler.
func (y YesNo) MarshalText() ([]byte, error) {
	if y {
		return []byte("Y"), nil
	}
	return []byte("N"), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (y *YesNo) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Y", "y":
		*y = true
	case "N", "n", "":
		*y = false
	default:
		return fmt.Errorf("invalid Y/N value %q", b)
	}
	return nil
}

// JobResultItem is the outcome of one job item, reported back to the management server.
type JobResultItem struct {
	BatchLogID string     `json:"batGrpLogId"`
	RetryCount int        `json:"batGrpRtyCnt"`
	ProgramID  string     `json:"batPrmId"`
	Status     StatusCode `json:"batPrmStCd"`
	Message    string     `json:"rsltMsg"`
	Order      int        `json:"excnOrd"`
	StartedAt  Millis     `json:"batBgngDt"`
	EndedAt    Millis     `json:"batEndDt"`
	Last       YesNo      `json:"lastYn"`

	// AdminEmail travels with the result so incident reports reach the right
	// administrator. It is not part of the report schema.
	AdminEmail string `json:"-"`
}

// Stamp copies the identifying fields of a request item onto the result and
// computes the last-item flag against the batch size.
func (r *JobResultItem) Stamp(item JobRequestItem, batchSize int) {
	r.BatchLogID = item.BatchLogID
	r.RetryCount = item.RetryCount
	r.ProgramID = item.ProgramID
	r.Order = item.Order
	r.AdminEmail = item.AdminEmail
	r.Last = YesNo(item.Order == batchSize)
}

// IsSuccess returns true if the result indicates success.
func (r *JobResultItem) IsSuccess() bool {
	return r.Status == StatusSuccess
}

// Duration returns the wall-clock time between start and end.
func (r *JobResultItem) Duration() time.Duration {
	if r.StartedAt.Time().IsZero() || r.EndedAt.Time().IsZero() {
		return 0
	}
	return r.EndedAt.Time().Sub(r.StartedAt.Time())
}

// String renders the result for logs and incident reports.
func (r *JobResultItem) String() string {
	return fmt.Sprintf("JobResultItem(batGrpLogId=%s, batGrpRtyCnt=%d, batPrmId=%s, batPrmStCd=%s, rsltMsg=%s, excnOrd=%d, batBgngDt=%s, batEndDt=%s, lastYn=%t)",
		r.BatchLogID, r.RetryCount, r.ProgramID, r.Status, r.Message, r.Order,
		formatTime(r.StartedAt.Time()), formatTime(r.EndedAt.Time()), bool(r.Last))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "null"
	}
	return t.Format(time.RFC3339)
}
