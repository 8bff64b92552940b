// Package commit routes records to every backend registered for their
// role and reports per-driver outcomes. Durability is at-least-one-of-N
// per required role: backends serve different query capabilities, and a
// single available store keeps the record discoverable. Deployments that
// need all-or-nothing semantics change only the success predicate.
package commit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cognidex/cognidex/internal/domain"
	"github.com/cognidex/cognidex/internal/registry"
	"github.com/cognidex/cognidex/internal/store"
	"github.com/cognidex/cognidex/internal/telemetry"
)

const (
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

// ErrNoDurableWrite is returned when a required role ends the commit
// with zero successful drivers. The caller owns upstream retry or
// dead-lettering; unacknowledged records are not buffered here.
var ErrNoDurableWrite = errors.New("no driver accepted the write for a required role")

// SuccessPredicate decides whether a commit succeeded for one required
// role given its receipt.
type SuccessPredicate func(r *Receipt, role store.Role) bool

// atLeastOne is the default durability contract.
func atLeastOne(r *Receipt, role store.Role) bool { return r.Succeeded(role) }

// Coordinator fans writes out to the registry.
type Coordinator struct {
	reg       *registry.Registry
	succeeded SuccessPredicate
}

// New creates a Coordinator with the at-least-one-of durability contract.
func New(reg *registry.Registry) *Coordinator {
	return &Coordinator{reg: reg, succeeded: atLeastOne}
}

// NewWithPredicate creates a Coordinator with a custom durability
// contract.
func NewWithPredicate(reg *registry.Registry, pred SuccessPredicate) *Coordinator {
	return &Coordinator{reg: reg, succeeded: pred}
}

// rolesFor maps a record kind onto (required, best-effort) roles.
// Triples always require the index role and additionally reach the graph
// role when one is configured; embeddings require the vector role;
// discoveries and insights require the index role.
func (c *Coordinator) rolesFor(rec domain.Record) (required []store.Role, bestEffort []store.Role) {
	switch rec.RecordKind() {
	case domain.KindEmbeddedKnowledge:
		return []store.Role{store.RoleVector}, nil
	case domain.KindSemanticTriple:
		if c.reg.HasRole(store.RoleGraph) {
			return []store.Role{store.RoleIndex}, []store.Role{store.RoleGraph}
		}
		return []store.Role{store.RoleIndex}, nil
	default:
		return []store.Role{store.RoleIndex}, nil
	}
}

// Commit validates the record, fans the write out concurrently to every
// driver registered for the record's roles, and returns the receipt.
// The receipt is returned even on failure so callers can inspect
// per-driver outcomes. A caller-supplied deadline on ctx bounds the
// whole call; drivers that have not answered by then are reported as
// timed out and their in-flight calls abandoned.
func (c *Coordinator) Commit(ctx context.Context, rec domain.Record) (*Receipt, error) {
	ctx, span := telemetry.StartSpan(ctx, "commit", telemetry.SpanAttributes{
		Collection: rec.CollectionID(),
		Operation:  string(rec.RecordKind()),
	})
	defer span.End()

	receipt := &Receipt{EventID: rec.RecordID(), Kind: rec.RecordKind()}

	if err := rec.Validate(); err != nil {
		span.SetError(err)
		return receipt, store.NewError(store.ErrSchemaViolation, "", "commit", err)
	}

	required, bestEffort := c.rolesFor(rec)
	for _, role := range required {
		if !c.reg.HasRole(role) {
			err := fmt.Errorf("%w: no backend configured for role %q", ErrNoDurableWrite, role)
			span.SetError(err)
			return receipt, err
		}
	}

	type target struct {
		inst *registry.Instance
		role store.Role
	}
	var targets []target
	for _, role := range append(append([]store.Role{}, required...), bestEffort...) {
		for _, inst := range c.reg.InstancesFor(role) {
			targets = append(targets, target{inst: inst, role: role})
		}
	}

	outcomes := make([]DriverOutcome, len(targets))
	filled := make([]atomic.Bool, len(targets))

	var wg sync.WaitGroup
	done := make(chan struct{})
	for i, tgt := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome := c.writeOne(ctx, tgt.inst, tgt.role, rec)
			outcomes[i] = outcome
			filled[i].Store(true)
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// In-flight driver calls are abandoned, not forcibly cancelled.
	}

	final := make([]DriverOutcome, len(targets))
	for i := range targets {
		if filled[i].Load() {
			final[i] = outcomes[i]
			continue
		}
		final[i] = DriverOutcome{
			Backend: targets[i].inst.Name(),
			Role:    targets[i].role,
			Status:  StatusTimeout,
			ErrKind: store.ErrTimeout,
			Err:     ctx.Err(),
		}
	}
	receipt.Outcomes = final

	for _, role := range required {
		if !c.succeeded(receipt, role) {
			err := fmt.Errorf("%w: role %q, event %q", ErrNoDurableWrite, role, rec.RecordID())
			span.SetError(err)
			return receipt, err
		}
	}
	if receipt.Degraded() {
		log.Printf("commit degraded: event %q stored with partial backend failure", rec.RecordID())
	}
	return receipt, nil
}

// writeOne runs one driver's write with bounded retry. Only Transient
// failures are retried; schema violations, inconsistencies, and
// unavailable backends surface immediately.
func (c *Coordinator) writeOne(ctx context.Context, inst *registry.Instance, role store.Role, rec domain.Record) DriverOutcome {
	outcome := DriverOutcome{Backend: inst.Name(), Role: role}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initialBackoff
	policy.MaxInterval = maxBackoff

	var result store.WriteOutcome
	op := func() error {
		outcome.Attempts++
		var err error
		result, err = inst.Driver().Write(ctx, rec)
		if err == nil {
			return nil
		}
		if store.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), ctx))
	inst.Report(err)

	if err != nil {
		kind := store.KindOf(err)
		// A duplicate with identical payload is an idempotent redelivery.
		if kind == store.ErrConflict {
			outcome.Status = StatusDeduplicated
			return outcome
		}
		outcome.Status = StatusFailed
		outcome.ErrKind = kind
		outcome.Err = err
		if kind == store.ErrTimeout {
			outcome.Status = StatusTimeout
		}
		return outcome
	}

	if result.Deduplicated {
		outcome.Status = StatusDeduplicated
	} else {
		outcome.Status = StatusOK
	}
	return outcome
}
