package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog/log"

	"batch-agent/internal/wire"
	"batch-agent/pkg/types"
)

// ReportListener plays the receiving side of the management server: it accepts
// the "log" reports agents send after each job.
type ReportListener struct {
	lis     net.Listener
	reports chan types.JobResultItem
	done    chan struct{}
	once    sync.Once
}

// Listen starts accepting reports on address.
func Listen(address string) (*ReportListener, error) {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	r := &ReportListener{lis: lis, reports: make(chan types.JobResultItem, 64), done: make(chan struct{})}
	go r.acceptLoop()
	return r, nil
}

// Addr returns the listening address.
func (r *ReportListener) Addr() net.Addr {
	return r.lis.Addr()
}

// Reports delivers received results in arrival order. It is closed after Close.
func (r *ReportListener) Reports() <-chan types.JobResultItem {
	return r.reports
}

// Close stops accepting reports. Reports not yet read are dropped.
func (r *ReportListener) Close() error {
	r.once.Do(func() { close(r.done) })
	return r.lis.Close()
}

func (r *ReportListener) acceptLoop() {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		close(r.reports)
	}()

	for {
		conn, err := r.lis.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Error().Err(err).Msg("report listener stopped")
			}
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			item, err := DecodeReport(conn)
			if err != nil {
				log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("bad report")
				return
			}
			select {
			case r.reports <- item:
			case <-r.done:
			}
		}()
	}
}

// DecodeReport reads one report frame: a "log" envelope whose message is the
// serialized result as a JSON string.
func DecodeReport(conn net.Conn) (types.JobResultItem, error) {
	var item types.JobResultItem
	env, err := wire.ReadEnvelope(conn)
	if err != nil {
		return item, err
	}
	if env.Command() != types.CommandLog {
		return item, fmt.Errorf("%w: unexpected command %q", wire.ErrMalformed, env.Cmd)
	}
	if err := json.Unmarshal([]byte(env.StringMessage()), &item); err != nil {
		return item, fmt.Errorf("%w: %v", wire.ErrMalformed, err)
	}
	return item, nil
}

// BatchSummary collects the reported results of one batch group run.
type BatchSummary struct {
	BatchLogID string
	Results    []types.JobResultItem
}

// IsComplete returns true once the last item of the group has been reported.
func (s *BatchSummary) IsComplete() bool {
	n := len(s.Results)
	return n > 0 && bool(s.Results[n-1].Last)
}

// IsSuccess returns true if every reported item succeeded.
func (s *BatchSummary) IsSuccess() bool {
	for _, r := range s.Results {
		if !r.IsSuccess() {
			return false
		}
	}
	return s.IsComplete()
}

// WaitForBatch collects reports of batchLogID until the last item arrives or
// ctx is done. Reports of other batches are discarded.
func (r *ReportListener) WaitForBatch(ctx context.Context, batchLogID string) (*BatchSummary, error) {
	summary := &BatchSummary{BatchLogID: batchLogID}
	for {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		case item, ok := <-r.reports:
			if !ok {
				return summary, errors.New("report listener closed")
			}
			if item.BatchLogID != batchLogID {
				continue
			}
			summary.Results = append(summary.Results, item)
			if item.Last {
				return summary, nil
			}
		}
	}
}

// RunAndWait submits items and waits on listener for their results.
func (c *Client) RunAndWait(ctx context.Context, listener *ReportListener, items []types.JobRequestItem) (*BatchSummary, error) {
	if err := c.Run(ctx, items); err != nil {
		return nil, err
	}
	return listener.WaitForBatch(ctx, items[0].BatchLogID)
}
