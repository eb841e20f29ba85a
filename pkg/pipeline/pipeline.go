// Package pipeline implements the Update Pipeline: the ordered,
// acknowledged application of server updates to the device's current
// schema, invoking an external Interpreter and producing render
// snapshots. The pipeline is the sole writer of the canonical current
// schema; the Interpreter is purely a function of (schema|delta) to View.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/reloadsync/reloadsync/internal/logger"
	"github.com/reloadsync/reloadsync/pkg/delta"
	"github.com/reloadsync/reloadsync/pkg/schema"
	"github.com/reloadsync/reloadsync/pkg/wire"
)

// DebounceWindow is the default coalescing window for bursts of
// Incremental updates.
const DebounceWindow = 300 * time.Millisecond

// MaxConsecutiveIncrementalFailures is the number of consecutive
// incremental-apply failures after which the pipeline requests a Reload
// to resynchronize with a Full update.
const MaxConsecutiveIncrementalFailures = 3

// Sender is the narrow capability the pipeline needs to emit Ack and
// Reload messages: a send-capability handle, not a back-pointer to the
// whole transport.
type Sender interface {
	Send(msg wire.Message) error
}

// SchemaSaver is the narrow capability the pipeline uses for the
// best-effort persistence step after every successful application.
type SchemaSaver interface {
	SaveSchema(ctx context.Context, s *schema.Schema) error
}

// UpdateResult is emitted once per application cycle (one per inbound
// Full, or one per coalesced batch of Incrementals).
type UpdateResult struct {
	Success     bool
	View        View
	Err         error
	ApplyTimeMs int64
	UpdateType  wire.UpdateKind
}

// Pipeline is the device-side Update Pipeline. One Pipeline serves one
// Session Controller's stream of inbound Update/Reload/Error messages.
type Pipeline struct {
	interp    Interpreter
	saver     SchemaSaver
	sender    Sender
	log       *logger.Logger
	sessionID string

	debounceWindow time.Duration

	mu                  sync.Mutex
	currentSchema       *schema.Schema
	lastAppliedSequence int64
	lastGoodView        View
	consecutiveFailures int

	metrics *MetricRing
	results chan UpdateResult
}

// Config configures a Pipeline's tunables.
type Config struct {
	DebounceWindow time.Duration
	MetricCapacity int
}

// DefaultConfig returns the spec-prescribed defaults.
func DefaultConfig() Config {
	return Config{DebounceWindow: DebounceWindow, MetricCapacity: DefaultMetricCapacity}
}

// New constructs a Pipeline. interp and sender must be non-nil; saver
// may be a devicecache-backed session.Controller, any narrower stand-in,
// or nil, in which case applied schemas are not persisted. sessionID is stamped onto outbound Ack/Reload
// envelopes.
func New(interp Interpreter, saver SchemaSaver, sender Sender, sessionID string, cfg Config, log *logger.Logger) *Pipeline {
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DebounceWindow
	}
	if log == nil {
		log = logger.Default()
	}
	return &Pipeline{
		interp:         interp,
		saver:          saver,
		sender:         sender,
		sessionID:      sessionID,
		log:            log,
		debounceWindow: cfg.DebounceWindow,
		metrics:        NewMetricRing(cfg.MetricCapacity),
		results:        make(chan UpdateResult, 32),
	}
}

// Results streams one UpdateResult per application cycle.
func (p *Pipeline) Results() <-chan UpdateResult { return p.results }

// Metrics returns a snapshot of the bounded ApplyMetric ring.
func (p *Pipeline) Metrics() []ApplyMetric { return p.metrics.Snapshot() }

// CurrentSchema returns the pipeline's canonical schema, or nil before
// the first Full update has been applied.
func (p *Pipeline) CurrentSchema() *schema.Schema {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentSchema
}

// SeedSchema primes the pipeline with a previously cached schema (e.g.
// loaded from devicecache on reconnect) without emitting an UpdateResult
// or Ack. lastAppliedSequence is left at 0 so the next server-assigned
// sequence is still accepted.
func (p *Pipeline) SeedSchema(s *schema.Schema) {
	p.mu.Lock()
	p.currentSchema = s
	p.mu.Unlock()
}

// Run consumes updates until ctx is cancelled or the channel closes,
// applying Full updates immediately and coalescing bursts of Incremental
// updates within the debounce window. Any pending incremental batch is
// flushed before a Full update is applied and on shutdown, so debouncing
// never crosses a Full boundary.
func (p *Pipeline) Run(ctx context.Context, updates <-chan wire.Message) {
	var pending []wire.Update
	timer := time.NewTimer(p.debounceWindow)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = nil
		p.applyIncrementalBatch(ctx, batch)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case msg, ok := <-updates:
			if !ok {
				flush()
				return
			}
			switch m := msg.(type) {
			case wire.Update:
				if m.Kind == wire.UpdateKindFull {
					flush()
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					p.applyFull(ctx, m)
				} else {
					pending = append(pending, m)
					if len(pending) == 1 {
						timer.Reset(p.debounceWindow)
					}
				}
			case wire.Reload:
				p.log.Info("pipeline: server requested reload", "reason", m.Reason)
			case wire.Error:
				p.log.Warn("pipeline: non-fatal protocol error", "code", m.Code, "message", m.Message)
			default:
				p.log.Debug("pipeline: ignoring unexpected message on update stream")
			}

		case <-timer.C:
			flush()
		}
	}
}

func (p *Pipeline) applyFull(ctx context.Context, m wire.Update) {
	start := time.Now()

	p.mu.Lock()
	if m.Sequence != 0 && m.Sequence <= p.lastAppliedSequence {
		p.mu.Unlock()
		p.ackAndMetric(m.Sequence, true, "", 0, "full")
		return
	}
	p.mu.Unlock()

	if m.Schema == nil {
		p.fail(m.Sequence, "full", start, wire.CodeUpdateFailed, "full update missing schema")
		return
	}
	if m.Checksum != "" {
		sum, err := schema.Checksum(*m.Schema)
		if err != nil || sum != m.Checksum {
			p.fail(m.Sequence, "full", start, wire.CodeChecksumMismatch, string(wire.CodeChecksumMismatch))
			return
		}
	}

	view, err := p.safeInterpret(*m.Schema, m.PreserveState)
	if err != nil {
		p.fail(m.Sequence, "full", start, wire.CodeUpdateFailed, err.Error())
		return
	}

	p.mu.Lock()
	p.currentSchema = m.Schema
	p.lastAppliedSequence = m.Sequence
	p.lastGoodView = view
	p.consecutiveFailures = 0
	p.mu.Unlock()

	p.saveBestEffort(ctx, m.Schema)
	p.succeed(m.Sequence, "full", start, view)
}

// applyIncrementalBatch applies a coalesced run of Incremental updates:
// each is applied to the interpreter's model in arrival order and each
// gets its own Ack, but only the final application's view surfaces as an
// UpdateResult, per the debounce coalescing contract.
func (p *Pipeline) applyIncrementalBatch(ctx context.Context, batch []wire.Update) {
	var lastView View
	var lastErr error
	var lastApplyMs int64
	anyApplied := false

	for _, m := range batch {
		start := time.Now()

		p.mu.Lock()
		if m.Sequence <= p.lastAppliedSequence {
			p.mu.Unlock()
			p.ackAndMetric(m.Sequence, true, "", 0, "incremental")
			continue
		}
		if p.lastAppliedSequence > 0 && m.Sequence > p.lastAppliedSequence+1 {
			p.log.Warn("pipeline: sequence gap detected",
				"expected", p.lastAppliedSequence+1, "got", m.Sequence)
		}
		base := p.currentSchema
		p.mu.Unlock()

		if base == nil {
			elapsed := time.Since(start).Milliseconds()
			p.recordFailure(m.Sequence, "incremental", elapsed, wire.CodeUpdateFailed, "no base")
			p.ackAndMetric(m.Sequence, false, string(wire.CodeUpdateFailed), elapsed, "incremental")
			lastErr = fmt.Errorf("pipeline: %s", wire.CodeUpdateFailed)
			continue
		}
		if m.Delta == nil {
			elapsed := time.Since(start).Milliseconds()
			p.recordFailure(m.Sequence, "incremental", elapsed, wire.CodeUpdateFailed, "missing delta")
			p.ackAndMetric(m.Sequence, false, string(wire.CodeUpdateFailed), elapsed, "incremental")
			lastErr = fmt.Errorf("pipeline: incremental update missing delta")
			continue
		}

		view, err := p.safeApplyDelta(*m.Delta, m.PreserveState)
		elapsed := time.Since(start).Milliseconds()
		if err != nil {
			p.recordFailure(m.Sequence, "incremental", elapsed, wire.CodeUpdateFailed, err.Error())
			p.ackAndMetric(m.Sequence, false, err.Error(), elapsed, "incremental")
			lastErr = err
			continue
		}

		newSchema, applyErr := delta.Apply(*base, *m.Delta)
		if applyErr != nil {
			p.recordFailure(m.Sequence, "incremental", elapsed, wire.CodeUpdateFailed, applyErr.Error())
			p.ackAndMetric(m.Sequence, false, applyErr.Error(), elapsed, "incremental")
			lastErr = applyErr
			continue
		}

		p.mu.Lock()
		p.currentSchema = &newSchema
		p.lastAppliedSequence = m.Sequence
		p.lastGoodView = view
		p.consecutiveFailures = 0
		p.mu.Unlock()

		p.saveBestEffort(ctx, &newSchema)
		p.ackAndMetric(m.Sequence, true, "", elapsed, "incremental")

		lastView, lastErr, lastApplyMs, anyApplied = view, nil, elapsed, true
	}

	if !anyApplied && lastErr == nil {
		return
	}
	p.results <- UpdateResult{
		Success:     lastErr == nil,
		View:        lastView,
		Err:         lastErr,
		ApplyTimeMs: lastApplyMs,
		UpdateType:  wire.UpdateKindIncremental,
	}
}

func (p *Pipeline) recordFailure(sequence int64, kind string, applyMs int64, code wire.ErrorCode, msg string) {
	p.mu.Lock()
	p.consecutiveFailures++
	failures := p.consecutiveFailures
	p.mu.Unlock()

	p.log.Debug("pipeline: update application failed",
		"sequence", sequence, "kind", kind, "code", code, "applyTimeMs", applyMs, "error", msg)

	if kind == "incremental" && failures >= MaxConsecutiveIncrementalFailures {
		p.log.Warn("pipeline: consecutive incremental failures exceeded threshold, requesting reload",
			"failures", failures)
		if err := p.sender.Send(wire.Reload{
			Envelope: wire.Envelope{Type: wire.TypeReload, SessionID: p.sessionID, Timestamp: time.Now().UnixMilli(), Version: wire.ProtocolVersion},
			Reason:   wire.ReloadReasonError,
			Error:    msg,
		}); err != nil {
			p.log.Warn("pipeline: failed to send reload request", "error", err.Error())
		}
		p.mu.Lock()
		p.consecutiveFailures = 0
		p.mu.Unlock()
	}
}

func (p *Pipeline) fail(sequence int64, kind string, start time.Time, code wire.ErrorCode, msg string) {
	elapsed := time.Since(start).Milliseconds()
	p.recordFailure(sequence, kind, elapsed, code, msg)
	p.ackAndMetric(sequence, false, msg, elapsed, kind)
	p.results <- UpdateResult{Success: false, Err: fmt.Errorf("pipeline: %s: %s", code, msg), ApplyTimeMs: elapsed, UpdateType: wire.UpdateKindFull}
}

func (p *Pipeline) succeed(sequence int64, kind string, start time.Time, view View) {
	elapsed := time.Since(start).Milliseconds()
	p.ackAndMetric(sequence, true, "", elapsed, kind)
	p.results <- UpdateResult{Success: true, View: view, ApplyTimeMs: elapsed, UpdateType: wire.UpdateKindFull}
}

func (p *Pipeline) ackAndMetric(sequence int64, success bool, errMsg string, applyMs int64, kind string) {
	var applyPtr *int64
	if applyMs > 0 || success {
		applyPtr = &applyMs
	}
	if err := p.sender.Send(wire.Ack{
		Envelope:    wire.Envelope{Type: wire.TypeAck, SessionID: p.sessionID, Timestamp: time.Now().UnixMilli(), Version: wire.ProtocolVersion},
		Sequence:    sequence,
		Success:     success,
		Error:       errMsg,
		ApplyTimeMs: applyPtr,
	}); err != nil {
		p.log.Warn("pipeline: failed to send ack", "sequence", sequence, "error", err.Error())
	}
	p.metrics.Record(ApplyMetric{
		Sequence:    sequence,
		Type:        kind,
		ApplyTimeMs: applyMs,
		Success:     success,
		Error:       errMsg,
		Timestamp:   time.Now().UnixMilli(),
	})
}

// safeInterpret invokes the external Interpreter's Interpret under a
// panics.Catcher so a defect in that out-of-scope collaborator surfaces
// as an ordinary UPDATE_FAILED error instead of crashing the pipeline
// task.
func (p *Pipeline) safeInterpret(s schema.Schema, preserveState bool) (view View, err error) {
	var pc panics.Catcher
	pc.Try(func() {
		view, err = p.interp.Interpret(s, preserveState)
	})
	if r := pc.Recovered(); r != nil {
		return nil, fmt.Errorf("pipeline: interpreter panic: %w", r.AsError())
	}
	return view, err
}

// safeApplyDelta is the ApplyDelta counterpart of safeInterpret.
func (p *Pipeline) safeApplyDelta(d delta.SchemaDelta, preserveState bool) (view View, err error) {
	var pc panics.Catcher
	pc.Try(func() {
		view, err = p.interp.ApplyDelta(d, preserveState)
	})
	if r := pc.Recovered(); r != nil {
		return nil, fmt.Errorf("pipeline: interpreter panic: %w", r.AsError())
	}
	return view, err
}

func (p *Pipeline) saveBestEffort(ctx context.Context, s *schema.Schema) {
	if p.saver == nil {
		return
	}
	if err := p.saver.SaveSchema(ctx, s); err != nil {
		p.log.Debug("pipeline: best-effort schema save failed", "error", err.Error())
	}
}
