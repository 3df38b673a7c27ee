package ir

import "time"

// Op is the kind of change an operation performs.
type Op string

const (
	OpCreate  Op = "create"
	OpUpdate  Op = "update"
	OpReplace Op = "replace" // create new instance; old instance deleted by a deferred delete
	OpDelete  Op = "delete"
	OpNoop    Op = "noop"
)

// Change is a single planned operation for one resource.
type Change struct {
	ID    ID
	Op    Op
	Attrs map[string]any // desired attributes, references unresolved
	Prior *Entry         // recorded state, nil for create

	// Deposed marks the deferred deletion of the instance a replace left
	// behind. It deletes OldHandle without touching the store entry, which
	// the replacement already owns.
	Deposed   bool
	OldHandle string

	// Dependencies are the resource's graph prerequisites, recorded into
	// the state entry on success so destroy ordering survives the document.
	Dependencies []string

	Diff map[string]*AttrDiff
}

// Key returns the scheduling key for the change. A deposed delete gets its
// own node so it can be ordered independently of the replacement.
func (c *Change) Key() string {
	if c.Deposed {
		return c.ID.String() + " (deposed)"
	}
	return c.ID.String()
}

// AttrDiff describes one changed attribute, for display.
type AttrDiff struct {
	Before            any
	After             any
	ForcesReplacement bool
}

// Plan is an ordered sequence of change batches. Changes within a batch
// have no ordering relationship and may run concurrently; a batch only
// starts after the previous batch has settled.
type Plan struct {
	Batches [][]*Change
	// Deps maps a change key to the keys of the changes that must complete
	// before it may start. Used for blocked-status propagation.
	Deps    map[string][]string
	Summary Summary
}

// Changes returns all scheduled changes in batch order.
func (p *Plan) Changes() []*Change {
	var out []*Change
	for _, b := range p.Batches {
		out = append(out, b...)
	}
	return out
}

func (p *Plan) Empty() bool {
	return len(p.Batches) == 0
}

type Summary struct {
	Create  int
	Update  int
	Replace int
	Delete  int
	NoOp    int
}

// Status is a resource's final status for one run.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApplying Status = "applying"
	StatusApplied  Status = "applied"
	StatusFailed   Status = "failed"
	StatusBlocked  Status = "blocked" // a dependency failed
	StatusSkipped  Status = "skipped" // not attempted (run cancelled)
)

// Result is the per-change outcome recorded in the run report.
type Result struct {
	ID        ID
	Op        Op
	Status    Status
	Err       string // cause, set when Status is failed
	BlockedOn string // failed or blocked dependency, set when Status is blocked
	Duration  time.Duration
}

// Report is the structured summary of an apply run.
type Report struct {
	RunID   string
	Results map[string]*Result // keyed by change key
	Summary Summary
}

func (r *Report) Counts() (applied, failed, blocked, skipped int) {
	for _, res := range r.Results {
		switch res.Status {
		case StatusApplied:
			applied++
		case StatusFailed:
			failed++
		case StatusBlocked:
			blocked++
		case StatusSkipped:
			skipped++
		}
	}
	return
}

// Failed reports whether any operation failed or was blocked.
func (r *Report) Failed() bool {
	_, failed, blocked, _ := r.Counts()
	return failed > 0 || blocked > 0
}
