package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gantry-io/gantry/internal/ir"
	"github.com/gantry-io/gantry/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ApplyEvent reports progress of one operation during apply.
type ApplyEvent struct {
	Key      string
	Op       ir.Op
	Status   ir.Status
	Duration time.Duration
	Err      error
}

// ApplyCallback receives progress events if set.
type ApplyCallback func(ApplyEvent)

// applyRun is the mutable bookkeeping for one apply: per-operation status,
// the live outputs of applied resources, and causes for the report.
type applyRun struct {
	mu        sync.Mutex
	statuses  map[string]ir.Status
	causes    map[string]string
	blockedOn map[string]string
	durations map[string]time.Duration
	outputs   map[string]map[string]any // addr -> applied outputs
}

func (r *applyRun) set(key string, st ir.Status) {
	r.mu.Lock()
	r.statuses[key] = st
	r.mu.Unlock()
}

// blocker returns the first dependency that prevents key from running and
// the status it would give key, or "" when all dependencies are satisfied.
func (r *applyRun) blocker(deps []string) (string, ir.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dep := range deps {
		switch r.statuses[dep] {
		case ir.StatusFailed, ir.StatusBlocked:
			return dep, ir.StatusBlocked
		case ir.StatusSkipped:
			return dep, ir.StatusSkipped
		}
	}
	return "", ""
}

// Apply executes the plan batch by batch. Within a batch operations run
// concurrently up to the engine's concurrency ceiling. Each success updates
// the state store immediately, so a crash mid-apply leaves recorded state
// consistent with exactly the operations that completed. A failure blocks
// the failing resource's transitive dependents while independent branches
// continue; the run report lists every outcome. Cancelling ctx stops
// issuing operations but lets in-flight provider calls finish.
func (e *Engine) Apply(ctx context.Context, plan *ir.Plan, prior map[ir.ID]*ir.Entry, callback ApplyCallback) (*ir.Report, error) {
	run := &applyRun{
		statuses:  make(map[string]ir.Status),
		causes:    make(map[string]string),
		blockedOn: make(map[string]string),
		durations: make(map[string]time.Duration),
		outputs:   make(map[string]map[string]any, len(prior)),
	}
	for id, entry := range prior {
		run.outputs[id.String()] = entry.Outputs
	}
	for _, ch := range plan.Changes() {
		run.statuses[ch.Key()] = ir.StatusPending
	}

	emit := func(ev ApplyEvent) {
		if callback != nil {
			callback(ev)
		}
	}

	log := logging.Logger()
	for _, batch := range plan.Batches {
		grp := &errgroup.Group{}
		grp.SetLimit(e.Concurrency)

		for _, ch := range batch {
			ch := ch
			key := ch.Key()

			if ctx.Err() != nil {
				run.set(key, ir.StatusSkipped)
				emit(ApplyEvent{Key: key, Op: ch.Op, Status: ir.StatusSkipped})
				continue
			}
			if dep, st := run.blocker(plan.Deps[key]); dep != "" {
				run.mu.Lock()
				run.statuses[key] = st
				run.blockedOn[key] = dep
				run.mu.Unlock()
				log.Warn("operation not attempted", "resource", key, "status", string(st), "dependency", dep)
				emit(ApplyEvent{Key: key, Op: ch.Op, Status: st})
				continue
			}

			grp.Go(func() error {
				run.set(key, ir.StatusApplying)
				emit(ApplyEvent{Key: key, Op: ch.Op, Status: ir.StatusApplying})
				start := time.Now()

				err := e.applyChange(ctx, ch, run)

				run.mu.Lock()
				run.durations[key] = time.Since(start)
				if err != nil {
					run.statuses[key] = ir.StatusFailed
					run.causes[key] = err.Error()
				} else {
					run.statuses[key] = ir.StatusApplied
				}
				run.mu.Unlock()

				if err != nil {
					log.Error("operation failed", "resource", key, "op", string(ch.Op), "error", err)
					emit(ApplyEvent{Key: key, Op: ch.Op, Status: ir.StatusFailed, Duration: time.Since(start), Err: err})
					return nil
				}
				log.Debug("operation applied", "resource", key, "op", string(ch.Op), "duration", time.Since(start))
				emit(ApplyEvent{Key: key, Op: ch.Op, Status: ir.StatusApplied, Duration: time.Since(start)})
				return nil
			})
		}
		if err := grp.Wait(); err != nil {
			return nil, err
		}
	}

	return e.buildReport(plan, run), nil
}

// applyChange resolves the operation's references against live outputs,
// invokes the provider, and on success records the new state entry.
func (e *Engine) applyChange(ctx context.Context, ch *ir.Change, run *applyRun) error {
	prov, err := e.registry.ForKind(ch.ID.Kind)
	if err != nil {
		return fmt.Errorf("%s: %w", ch.ID, err)
	}

	// An in-flight provider call is never abandoned on run cancellation;
	// only the per-operation timeout bounds it.
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.OpTimeout)
	defer cancel()

	lookup := func(id ir.ID, output string) (any, bool) {
		run.mu.Lock()
		defer run.mu.Unlock()
		outs, ok := run.outputs[id.String()]
		if !ok {
			return nil, false
		}
		v, ok := outs[output]
		return v, ok
	}

	switch ch.Op {
	case ir.OpCreate, ir.OpReplace:
		resolved, err := resolveAttrs(ch.Attrs, lookup)
		if err != nil {
			return err
		}
		attrs := resolved.(map[string]any)
		var handle string
		var outputs map[string]any
		err = retryTransient(ctx, e.Retry, func() error {
			var callErr error
			handle, outputs, callErr = prov.Create(opCtx, ch.ID.Kind, attrs)
			return callErr
		})
		if err != nil {
			return &ProviderError{ID: ch.ID, Op: ch.Op, Err: err}
		}
		return e.recordApplied(ctx, ch, run, handle, outputs)

	case ir.OpUpdate:
		resolved, err := resolveAttrs(ch.Attrs, lookup)
		if err != nil {
			return err
		}
		attrs := resolved.(map[string]any)
		var outputs map[string]any
		err = retryTransient(ctx, e.Retry, func() error {
			var callErr error
			outputs, callErr = prov.Update(opCtx, ch.ID.Kind, ch.Prior.Handle, attrs)
			return callErr
		})
		if err != nil {
			return &ProviderError{ID: ch.ID, Op: ch.Op, Err: err}
		}
		return e.recordApplied(ctx, ch, run, ch.Prior.Handle, outputs)

	case ir.OpDelete:
		handle := ch.OldHandle
		if !ch.Deposed {
			handle = ch.Prior.Handle
		}
		err := retryTransient(ctx, e.Retry, func() error {
			return prov.Delete(opCtx, ch.ID.Kind, handle)
		})
		if err != nil {
			return &ProviderError{ID: ch.ID, Op: ch.Op, Err: err}
		}
		if ch.Deposed {
			// The store entry already describes the replacement instance.
			return nil
		}
		if err := e.store.Remove(context.WithoutCancel(ctx), ch.ID); err != nil {
			return fmt.Errorf("remove state for %s: %w", ch.ID, err)
		}
		run.mu.Lock()
		delete(run.outputs, ch.ID.String())
		run.mu.Unlock()
		return nil

	default:
		return &InternalError{Detail: fmt.Sprintf("unexpected scheduled operation %s for %s", ch.Op, ch.ID)}
	}
}

func (e *Engine) recordApplied(ctx context.Context, ch *ir.Change, run *applyRun, handle string, outputs map[string]any) error {
	entry := &ir.Entry{
		Kind:         ch.ID.Kind,
		Name:         ch.ID.Name,
		Handle:       handle,
		Attrs:        ch.Attrs,
		Outputs:      outputs,
		Dependencies: ch.Dependencies,
	}
	if err := e.store.Upsert(context.WithoutCancel(ctx), ch.ID, entry); err != nil {
		return fmt.Errorf("record state for %s: %w", ch.ID, err)
	}
	run.mu.Lock()
	run.outputs[ch.ID.String()] = outputs
	run.mu.Unlock()
	return nil
}

func (e *Engine) buildReport(plan *ir.Plan, run *applyRun) *ir.Report {
	report := &ir.Report{
		RunID:   uuid.NewString(),
		Results: make(map[string]*ir.Result),
		Summary: plan.Summary,
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	for _, ch := range plan.Changes() {
		key := ch.Key()
		status := run.statuses[key]
		if status == ir.StatusPending || status == ir.StatusApplying {
			status = ir.StatusSkipped
		}
		report.Results[key] = &ir.Result{
			ID:        ch.ID,
			Op:        ch.Op,
			Status:    status,
			Err:       run.causes[key],
			BlockedOn: run.blockedOn[key],
			Duration:  run.durations[key],
		}
	}
	return report
}
