// Package service implements the custody state machine and the logical
// operations exposed to request handlers.
//
// Engine is the only writer of the ledger. For every request it checks, in
// order, record existence, the actor's role and the current state, and only
// then commits the event and the record update as one unit through
// ledger.Store.Commit. Requests for the same identifier are serialized by a
// per-digest lock; requests for different identifiers never contend.
package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fedegimenez/inmate-state-ledger/internal/access"
	"github.com/fedegimenez/inmate-state-ledger/internal/digest"
	"github.com/fedegimenez/inmate-state-ledger/internal/fault"
	"github.com/fedegimenez/inmate-state-ledger/internal/ledger"
)

const tracerName = "github.com/fedegimenez/inmate-state-ledger/internal/custody/service"

// RoleChecker gates transitions. *access.Controller satisfies this interface.
type RoleChecker interface {
	Require(ctx context.Context, actor string, role access.Role) error
}

// Request is one transition to apply to the record keyed by Subject.
type Request struct {
	Subject digest.Digest
	Kind    ledger.Kind
	Actor   string

	Name        string // intake only
	Location    string // intake, transfer and arrival
	Description string
}

// Engine applies custody transitions.
type Engine struct {
	store  ledger.Store
	roles  RoleChecker
	locks  *keyLock
	now    func() time.Time
	tracer trace.Tracer
	logger *zap.Logger
}

// NewEngine creates an Engine over store, gated by roles.
func NewEngine(store ledger.Store, roles RoleChecker, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		roles:  roles,
		locks:  newKeyLock(),
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
		logger: logger,
	}
}

// SetClock replaces the engine's time source.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Apply validates req against the state machine and commits it.
// The context is honoured until the commit starts; from then on the commit
// runs to completion even if the caller goes away.
func (e *Engine) Apply(ctx context.Context, req Request) (rec *ledger.Record, ev *ledger.Event, err error) {
	ctx, span := e.tracer.Start(ctx, "custody.Apply", trace.WithAttributes(
		attribute.String("custody.kind", req.Kind.String()),
		attribute.String("custody.subject", req.Subject.String()),
	))
	defer func() {
		code := fault.CodeOf(err)
		outcome := outcomeOf(err, string(code))
		transitionsTotal.WithLabelValues(req.Kind.String(), outcome).Inc()
		span.SetAttributes(attribute.String("custody.outcome", outcome))
		if err != nil && code == "" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	r, ok := rules[req.Kind]
	if !ok {
		return nil, nil, fault.Malformed("unknown transition kind %d", req.Kind)
	}
	req.Actor = access.NormalizeActor(req.Actor)
	if req.Actor == "" {
		return nil, nil, fault.Malformed("actor is required")
	}

	unlock, err := e.locks.Lock(ctx, req.Subject)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	prev, err := e.store.Record(ctx, req.Subject)
	switch {
	case errors.Is(err, fault.ErrNotFound):
		prev = nil
	case err != nil:
		e.logger.Error("load record", zap.Stringer("subject", req.Subject), zap.Error(err))
		return nil, nil, err
	}

	if r.create && prev != nil {
		return nil, nil, e.reject(req, fault.New(fault.DuplicateRecord, "record %s already exists", req.Subject))
	}
	if !r.create && prev == nil {
		return nil, nil, e.reject(req, fault.New(fault.NotFound, "record %s not found", req.Subject))
	}

	if err := e.roles.Require(ctx, req.Actor, r.role); err != nil {
		return nil, nil, e.reject(req, err)
	}

	m := ledger.Mutation{
		Subject:     req.Subject,
		Kind:        req.Kind,
		Create:      r.create,
		Actor:       req.Actor,
		At:          e.now().UTC().Truncate(time.Microsecond),
		Description: req.Description,
		EventDigest: digest.OfString(req.Description),
	}
	if r.create {
		m.Name = req.Name
		m.State = r.to
	} else {
		if !r.allows(prev.State) {
			return nil, nil, e.reject(req, fault.Transition(req.Kind.String(), r.expected(), prev.State.String()))
		}
		m.Version = prev.Version()
		m.State = r.next(prev.State)
	}
	if r.setsLocation {
		m.SetLocation = true
		m.Location = req.Location
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	start := time.Now()
	rec, ev, err = e.store.Commit(context.WithoutCancel(ctx), m)
	commitDuration.WithLabelValues(req.Kind.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		if fault.CodeOf(err) == "" {
			e.logger.Error("commit transition", zap.Stringer("kind", req.Kind), zap.Error(err))
		}
		return nil, nil, err
	}

	e.logger.Info("custody transition committed",
		zap.Stringer("kind", req.Kind),
		zap.Stringer("subject", req.Subject),
		zap.Uint64("event_id", ev.ID),
		zap.Stringer("state", rec.State),
		zap.String("actor", req.Actor),
	)
	return rec, ev, nil
}

func (e *Engine) reject(req Request, err error) error {
	e.logger.Debug("custody transition rejected",
		zap.Stringer("kind", req.Kind),
		zap.Stringer("subject", req.Subject),
		zap.String("actor", req.Actor),
		zap.Error(err),
	)
	return err
}

// View returns the record for subject with its timeline resolved in order.
// An absent record yields a View with Exists false and no error.
func (e *Engine) View(ctx context.Context, subject digest.Digest) (*ledger.View, error) {
	ctx, span := e.tracer.Start(ctx, "custody.View", trace.WithAttributes(
		attribute.String("custody.subject", subject.String()),
	))
	defer span.End()

	rec, err := e.store.Record(ctx, subject)
	if errors.Is(err, fault.ErrNotFound) {
		return &ledger.View{Exists: false}, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	events, err := e.store.Events(ctx, rec.EventIDs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &ledger.View{Exists: true, Record: rec, Timeline: events}, nil
}
