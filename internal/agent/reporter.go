package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"batch-agent/internal/config"
	"batch-agent/internal/notify"
	"batch-agent/internal/wire"
	"batch-agent/pkg/types"
)

// Reporting errors.
var (
	ErrNilResult  = errors.New("result is nil")
	ErrSerialize  = errors.New("result serialization failed")
	ErrReportSend = errors.New("report delivery failed")
)

// Reporter delivers job results to the management server. Delivery is best
// effort: failures are handled inside Report and never reach the caller.
type Reporter interface {
	Report(ctx context.Context, result *types.JobResultItem)
}

// SocketReporter sends each result over its own connection to the management
// server and raises an incident when that fails.
type SocketReporter struct {
	addr     string
	host     string
	timeout  time.Duration
	notifier notify.Notifier
}

// NewSocketReporter creates a reporter for the configured management server.
func NewSocketReporter(cfg config.Agent, notifier notify.Notifier) *SocketReporter {
	return &SocketReporter{
		addr:     cfg.ManagementAddr(),
		host:     cfg.Identity(),
		timeout:  cfg.ReportTimeout,
		notifier: notifier,
	}
}

// Report sends result. No retry is attempted.
func (r *SocketReporter) Report(ctx context.Context, result *types.JobResultItem) {
	if err := r.send(ctx, result); err != nil {
		ev := log.Error().Err(err).Str("management_addr", r.addr)
		if result != nil {
			ev = ev.Str("result", result.String())
		}
		ev.Msg("result report failed")
		r.escalate(ctx, result, err)
		return
	}

	log.Info().
		Str("batch_log_id", result.BatchLogID).
		Str("program_id", result.ProgramID).
		Int("attempt", result.RetryCount+1).
		Str("status", result.Status.String()).
		Msg("result reported")
}

func (r *SocketReporter) send(ctx context.Context, result *types.JobResultItem) error {
	if result == nil {
		return ErrNilResult
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialize, err)
	}
	env, err := types.NewEnvelope(types.CommandLog, string(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialize, err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", r.addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReportSend, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if err := wire.WriteJSON(conn, env); err != nil {
		return fmt.Errorf("%w: %v", ErrReportSend, err)
	}
	return nil
}

func (r *SocketReporter) escalate(ctx context.Context, result *types.JobResultItem, cause error) {
	inc := notify.Incident{Host: r.host, Result: result, Err: cause}
	if err := r.notifier.Notify(context.WithoutCancel(ctx), inc); err != nil {
		log.Error().Err(err).Str("program_id", inc.ProgramID()).Msg("incident notification failed")
	}
}
