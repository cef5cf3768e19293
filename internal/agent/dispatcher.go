package agent

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"batch-agent/internal/wire"
	"batch-agent/pkg/types"
)

// HealthReply is written in response to a health check.
const HealthReply = "on"

// ErrInvalidBatch is returned when a run payload does not describe a batch.
var ErrInvalidBatch = errors.New("invalid batch payload")

//go:embed batch.schema.json
var batchSchemaJSON []byte

var (
	batchSchema     *gojsonschema.Schema
	batchSchemaOnce sync.Once
	batchSchemaErr  error
)

func getBatchSchema() (*gojsonschema.Schema, error) {
	batchSchemaOnce.Do(func() {
		batchSchema, batchSchemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(batchSchemaJSON))
	})
	return batchSchema, batchSchemaErr
}

// DecodeBatch validates and decodes a run payload. The payload is either a
// JSON array of items or a JSON string holding one. Unknown item fields are
// ignored.
func DecodeBatch(raw json.RawMessage) ([]types.JobRequestItem, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, types.ErrEmptyMessage
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
		}
		raw = json.RawMessage(s)
	}

	schema, err := getBatchSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling batch schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidBatch, strings.Join(errs, "; "))
	}

	var items []types.JobRequestItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}
	return items, nil
}

// DispatcherConfig holds the dispatcher settings.
type DispatcherConfig struct {
	// ReadTimeout bounds reading the request frame. Zero waits forever.
	ReadTimeout time.Duration

	// BatchPath is listed when a path request names no directory.
	BatchPath string

	// RecursivePaths lists whole trees instead of immediate children.
	RecursivePaths bool
}

// Dispatcher serves one request per connection.
type Dispatcher struct {
	cfg   DispatcherConfig
	batch *BatchRunner
}

// NewDispatcher creates a dispatcher that hands run requests to batch.
func NewDispatcher(cfg DispatcherConfig, batch *BatchRunner) *Dispatcher {
	return &Dispatcher{cfg: cfg, batch: batch}
}

// Handle reads one request from conn, serves it and closes conn. It never
// panics; a failing request only affects its own connection.
func (d *Dispatcher) Handle(ctx context.Context, conn net.Conn) {
	logger := log.With().
		Str("request_id", uuid.NewString()).
		Str("remote", conn.RemoteAddr().String()).
		Logger()

	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("request handler panicked")
		}
	}()

	if d.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(d.cfg.ReadTimeout))
	}
	env, err := wire.ReadEnvelope(conn)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read request")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	logger = logger.With().Str("cmd", env.Cmd).Logger()
	logger.Debug().Msg("request received")

	switch env.Command() {
	case types.CommandCheck:
		d.reply(logger, conn, func() error { return wire.WriteString(conn, HealthReply) })

	case types.CommandPath:
		d.listPath(logger, conn, env)

	case types.CommandRun:
		items, err := DecodeBatch(env.Message)
		if err != nil {
			logger.Warn().Err(err).Msg("rejected run request")
			return
		}
		// The server expects no reply; release the connection before the
		// batch starts.
		conn.Close()
		logger.Info().Int("items", len(items)).Msg("batch received")
		d.batch.Run(ctx, items)
		logger.Info().Int("items", len(items)).Msg("batch finished")

	case types.CommandLog:
		d.reject(logger, conn, "unsupported command: "+env.Cmd)

	default:
		d.reject(logger, conn, "unknown command: "+env.Cmd)
	}
}

func (d *Dispatcher) listPath(logger zerolog.Logger, conn net.Conn, env types.Envelope) {
	dir := env.StringMessage()
	if dir == "" {
		dir = d.cfg.BatchPath
	}

	listing, err := ListPath(dir, d.cfg.RecursivePaths)
	if err != nil {
		logger.Error().Err(err).Str("path", dir).Msg("path listing failed")
		return
	}
	d.reply(logger, conn, func() error { return wire.WriteJSON(conn, listing) })
}

func (d *Dispatcher) reject(logger zerolog.Logger, conn net.Conn, msg string) {
	logger.Warn().Msg(msg)
	d.reply(logger, conn, func() error { return wire.WriteJSON(conn, types.ErrorResponse{Error: msg}) })
}

func (d *Dispatcher) reply(logger zerolog.Logger, conn net.Conn, write func() error) {
	if err := write(); err != nil {
		logger.Warn().Err(err).Msg("failed to write response")
	}
}
