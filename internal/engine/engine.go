// Package engine orchestrates requests: it validates them, loads the table,
// dispatches an operation or asks the agent, persists results and shapes the
// response. Every request moves through the stages
//
//	received -> validated -> table_loaded -> dispatched|bridged -> result_serialized -> responded
//
// and a failure at any point is reported together with the last stage reached.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/klytics/xlengine/internal/agent"
	"github.com/klytics/xlengine/internal/apperr"
	"github.com/klytics/xlengine/internal/audit"
	"github.com/klytics/xlengine/internal/ops"
	"github.com/klytics/xlengine/internal/storage"
)

// DefaultSampleRows is the number of result rows echoed back when none is configured.
const DefaultSampleRows = 10

// Stage is a step of the request lifecycle.
type Stage string

const (
	Received         Stage = "received"
	Validated        Stage = "validated"
	TableLoaded      Stage = "table_loaded"
	Dispatched       Stage = "dispatched"
	Bridged          Stage = "bridged"
	ResultSerialized Stage = "result_serialized"
	Responded        Stage = "responded"
	Failed           Stage = "failed"
)

// Failure is returned by every Service method. Stage is the last stage the request
// reached before it failed; the kind is carried by the wrapped apperr.Error.
type Failure struct {
	Stage Stage
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s (after %s)", f.Err, f.Stage)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// StageOf returns the stage stamped on err, or "" if there is none.
func StageOf(err error) Stage {
	var f *Failure
	if errors.As(err, &f) {
		return f.Stage
	}
	return ""
}

// Config wires a Service.
type Config struct {
	Store      storage.Store
	Dispatcher *ops.Dispatcher
	Agent      agent.Agent
	Audit      *audit.Logger
	Logger     *slog.Logger
	SampleRows int
	Version    string
}

// Service is the request orchestrator shared by the HTTP server and the CLI.
type Service struct {
	store      storage.Store
	dispatcher *ops.Dispatcher
	agent      agent.Agent
	audit      *audit.Logger
	logger     *slog.Logger
	sampleRows int
	version    string
	now        func() time.Time
}

// New builds a Service. A nil Agent is replaced by one that is always unavailable.
func New(cfg Config) *Service {
	s := &Service{
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		agent:      cfg.Agent,
		audit:      cfg.Audit,
		logger:     cfg.Logger,
		sampleRows: cfg.SampleRows,
		version:    cfg.Version,
		now:        time.Now,
	}
	if s.dispatcher == nil {
		s.dispatcher = &ops.Dispatcher{}
	}
	if s.agent == nil {
		s.agent = agent.Unavailable("none", errors.New("no AI provider configured"))
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.sampleRows <= 0 {
		s.sampleRows = DefaultSampleRows
	}
	if s.version == "" {
		s.version = "dev"
	}
	return s
}

type ctxKey int

const (
	requestIDKey ctxKey = iota
	sourceKey
)

// WithRequestID attaches the caller's request ID; it is logged and audited.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request ID on ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithSource records which front end issued the request (http, cli, shell, watch).
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey, source)
}

func sourceOf(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey).(string); ok {
		return s
	}
	return "cli"
}

// tracker follows one request through its stages.
type tracker struct {
	svc     *Service
	ctx     context.Context
	logger  *slog.Logger
	stage   Stage
	started time.Time
	entry   audit.Entry
}

func (s *Service) begin(ctx context.Context, op, file string) *tracker {
	id := RequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	tr := &tracker{
		svc:     s,
		ctx:     ctx,
		logger:  s.logger.With("request_id", id, "operation", op),
		stage:   Received,
		started: s.now(),
		entry: audit.Entry{
			RequestID: id,
			Source:    sourceOf(ctx),
			Operation: op,
			InputFile: file,
		},
	}
	tr.logger.Debug("stage", "to", Received)
	return tr
}

func (tr *tracker) advance(stage Stage) {
	tr.logger.Debug("stage", "from", tr.stage, "to", stage)
	tr.stage = stage
}

// fail stamps the current stage onto err, logs and audits it.
func (tr *tracker) fail(err error) error {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		var e *apperr.Error
		if !errors.As(err, &e) {
			err = apperr.New(apperr.Internal, tr.entry.Operation, err)
		}
	}
	failure := &Failure{Stage: tr.stage, Err: err}

	level := slog.LevelWarn
	if kind == apperr.Internal || kind == apperr.ResourceUnwritable {
		level = slog.LevelError
	}
	tr.logger.Log(tr.ctx, level, "request failed", "stage", tr.stage, "kind", kind, "error", err)

	tr.entry.Status = "error"
	tr.entry.ErrorKind = string(kind)
	tr.entry.Stage = string(tr.stage)
	tr.finish()
	tr.stage = Failed
	return failure
}

// done marks the response as produced.
func (tr *tracker) done() {
	tr.advance(Responded)
	tr.entry.Status = "success"
	tr.finish()
	tr.logger.Info("request completed",
		"rows_before", tr.entry.RowsBefore, "rows_after", tr.entry.RowsAfter,
		"output", tr.entry.OutputFile, "duration_ms", tr.entry.DurationMs)
}

func (tr *tracker) finish() {
	tr.entry.Timestamp = tr.svc.now()
	tr.entry.DurationMs = tr.entry.Timestamp.Sub(tr.started).Milliseconds()
	tr.svc.audit.Log(tr.ctx, tr.entry)
}
