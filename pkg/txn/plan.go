package txn

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/catalogkit/pkg/datastore"
	"github.com/dmitrymomot/catalogkit/pkg/logger"
	"github.com/dmitrymomot/catalogkit/pkg/metrics"
)

// Op identifies a mutation kind within a plan.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpUpsert Op = "upsert"
)

// StepResult describes one successfully executed step.
type StepResult struct {
	Index int
	Op    Op
	Table string

	// Rows holds the rows the step produced: the inserted/upserted row or
	// the updated/deleted rows.
	Rows []datastore.Row
}

// Planner collects ordered mutations and resolves their compensations.
type Planner struct {
	store datastore.RowStore
	log   *slog.Logger
	mtr   *metrics.Collector

	onStep     func(StepResult)
	onCommit   func([]StepResult)
	onRollback func(*ExecError)

	specs []stepSpec
}

type stepSpec struct {
	op    Op
	table string
	row   datastore.Row
	match datastore.Match
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the logger used for rollback diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(p *Planner) {
		if log != nil {
			p.log = log
		}
	}
}

// WithMetrics wires step and rollback counters.
func WithMetrics(m *metrics.Collector) Option {
	return func(p *Planner) { p.mtr = m }
}

// WithOnStep registers a callback fired after each successful step.
func WithOnStep(fn func(StepResult)) Option {
	return func(p *Planner) { p.onStep = fn }
}

// WithOnCommit registers a callback fired once when every step succeeded.
func WithOnCommit(fn func([]StepResult)) Option {
	return func(p *Planner) { p.onCommit = fn }
}

// WithOnRollback registers a callback fired after compensation finished.
func WithOnRollback(fn func(*ExecError)) Option {
	return func(p *Planner) { p.onRollback = fn }
}

// NewPlanner creates a Planner over the given store.
// Panics when store is nil to fail fast during initialization.
func NewPlanner(store datastore.RowStore, opts ...Option) *Planner {
	if store == nil {
		panic(ErrNilStore)
	}

	p := &Planner{
		store: store,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Insert appends an insert step.
func (p *Planner) Insert(table string, row datastore.Row) *Planner {
	p.specs = append(p.specs, stepSpec{op: OpInsert, table: table, row: row.Clone()})
	return p
}

// Update appends an update step.
func (p *Planner) Update(table string, match datastore.Match, changes datastore.Row) *Planner {
	p.specs = append(p.specs, stepSpec{op: OpUpdate, table: table, match: match, row: changes.Clone()})
	return p
}

// Delete appends a delete step.
func (p *Planner) Delete(table string, match datastore.Match) *Planner {
	p.specs = append(p.specs, stepSpec{op: OpDelete, table: table, match: match})
	return p
}

// Upsert appends an upsert step.
func (p *Planner) Upsert(table string, match datastore.Match, row datastore.Row) *Planner {
	p.specs = append(p.specs, stepSpec{op: OpUpsert, table: table, match: match, row: row.Clone()})
	return p
}

type compKind int

const (
	// compDeleteCreated removes the row an insert (or inserting upsert)
	// created; the row id binds at rollback time from the step result.
	compDeleteCreated compKind = iota

	// compRestoreRows updates snapshotted rows back to their prior values.
	compRestoreRows

	// compReinsertRows re-inserts rows a delete removed.
	compReinsertRows
)

type compensation struct {
	kind  compKind
	table string
	rows  []datastore.Row // plan-time snapshots for restore/reinsert
}

type step struct {
	stepSpec
	comp compensation
}

// Plan resolves every step's compensation and returns an immutable plan.
// Resolution reads the store for update, delete and upsert steps; those
// reads can fail, in which case no plan is produced and nothing ran.
func (p *Planner) Plan(ctx context.Context) (*Plan, error) {
	steps := make([]step, 0, len(p.specs))

	for _, spec := range p.specs {
		st := step{stepSpec: spec}

		switch spec.op {
		case OpInsert:
			st.comp = compensation{kind: compDeleteCreated, table: spec.table}

		case OpUpdate:
			current, err := p.store.Select(ctx, spec.table, spec.match)
			if err != nil {
				return nil, err
			}
			st.comp = compensation{kind: compRestoreRows, table: spec.table, rows: cloneRows(current)}

		case OpDelete:
			current, err := p.store.Select(ctx, spec.table, spec.match)
			if err != nil {
				return nil, err
			}
			st.comp = compensation{kind: compReinsertRows, table: spec.table, rows: cloneRows(current)}

		case OpUpsert:
			current, err := p.store.Select(ctx, spec.table, spec.match, datastore.WithLimit(1))
			if err != nil {
				return nil, err
			}
			if len(current) > 0 {
				st.comp = compensation{kind: compRestoreRows, table: spec.table, rows: cloneRows(current)}
			} else {
				st.comp = compensation{kind: compDeleteCreated, table: spec.table}
			}
		}

		steps = append(steps, st)
	}

	return &Plan{
		store:      p.store,
		log:        p.log,
		mtr:        p.mtr,
		onStep:     p.onStep,
		onCommit:   p.onCommit,
		onRollback: p.onRollback,
		steps:      steps,
	}, nil
}

// Plan is a fully resolved, read-only execution plan. It is single-use.
type Plan struct {
	store datastore.RowStore
	log   *slog.Logger
	mtr   *metrics.Collector

	onStep     func(StepResult)
	onCommit   func([]StepResult)
	onRollback func(*ExecError)

	steps    []step
	consumed bool
}

// Len reports the number of steps in the plan.
func (p *Plan) Len() int { return len(p.steps) }

// Execute runs the plan. It returns the results of every step on success.
// On the first step failure it compensates the already applied steps in
// reverse order and returns an *ExecError. A zero-step plan commits
// immediately.
func (p *Plan) Execute(ctx context.Context) ([]StepResult, error) {
	if p.consumed {
		return nil, ErrPlanConsumed
	}
	p.consumed = true

	results := make([]StepResult, 0, len(p.steps))

	for i, st := range p.steps {
		rows, err := p.runStep(ctx, st)
		if err != nil {
			p.mtr.ObservePlanStep(st.table, string(st.op), "failure")
			execErr := &ExecError{
				FailedStep: i,
				Op:         st.op,
				Table:      st.table,
				StepErr:    err,
			}
			p.rollback(ctx, results, execErr)
			if p.onRollback != nil {
				p.onRollback(execErr)
			}
			return nil, execErr
		}

		res := StepResult{Index: i, Op: st.op, Table: st.table, Rows: rows}
		results = append(results, res)
		p.mtr.ObservePlanStep(st.table, string(st.op), "success")
		if p.onStep != nil {
			p.onStep(res)
		}
	}

	if p.onCommit != nil {
		p.onCommit(results)
	}
	return results, nil
}

func (p *Plan) runStep(ctx context.Context, st step) ([]datastore.Row, error) {
	switch st.op {
	case OpInsert:
		row, err := p.store.Insert(ctx, st.table, st.row)
		if err != nil {
			return nil, err
		}
		return []datastore.Row{row}, nil
	case OpUpdate:
		return p.store.Update(ctx, st.table, st.match, st.row)
	case OpDelete:
		return p.store.Delete(ctx, st.table, st.match)
	default: // OpUpsert
		row, err := p.store.Upsert(ctx, st.table, st.match, st.row)
		if err != nil {
			return nil, err
		}
		return []datastore.Row{row}, nil
	}
}

// rollback compensates applied steps in reverse order, best effort. Failed
// compensations are logged and recorded on execErr but never abort the
// remaining ones.
func (p *Plan) rollback(ctx context.Context, applied []StepResult, execErr *ExecError) {
	p.mtr.ObserveRollback()

	for i := len(applied) - 1; i >= 0; i-- {
		res := applied[i]
		comp := p.steps[res.Index].comp

		if err := p.compensate(ctx, comp, res); err != nil {
			execErr.CompensationErrs = append(execErr.CompensationErrs, err)
			p.log.ErrorContext(ctx, "compensation failed",
				logger.Component("txn"),
				logger.Table(comp.table),
				logger.Step(res.Index),
				logger.Error(err),
			)
			continue
		}
		execErr.Compensated = append(execErr.Compensated, res.Index)
	}
}

func (p *Plan) compensate(ctx context.Context, comp compensation, res StepResult) error {
	switch comp.kind {
	case compDeleteCreated:
		if len(res.Rows) == 0 {
			return nil
		}
		id, ok := res.Rows[0]["id"]
		if !ok {
			return &datastore.StoreError{Table: comp.table, Op: "delete", Err: datastore.ErrNotFound}
		}
		_, err := p.store.Delete(ctx, comp.table, datastore.Match{"id": id})
		return err

	case compRestoreRows:
		for _, prev := range comp.rows {
			id, ok := prev["id"]
			if !ok {
				continue
			}
			if _, err := p.store.Update(ctx, comp.table, datastore.Match{"id": id}, prev); err != nil {
				return err
			}
		}
		return nil

	default: // compReinsertRows
		for _, prev := range comp.rows {
			if _, err := p.store.Insert(ctx, comp.table, prev); err != nil {
				return err
			}
		}
		return nil
	}
}

func cloneRows(rows []datastore.Row) []datastore.Row {
	out := make([]datastore.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Clone())
	}
	return out
}
