package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultCascadeParallel bounds how many dependents of one tier are rebuilt
// at the same time.
const DefaultCascadeParallel = 4

// CascadeStatus is the outcome of one dependent in a cascade.
type CascadeStatus string

const (
	StatusRecomputed     CascadeStatus = "recomputed"
	StatusHeaderMismatch CascadeStatus = "header_mismatch"
	StatusFailed         CascadeStatus = "failed"
	StatusSkipped        CascadeStatus = "skipped"
)

// DependentOutcome reports what happened to one dependent table.
type DependentOutcome struct {
	DerivedID string               `json:"derivedId"`
	Name      string               `json:"name"`
	Tier      int                  `json:"tier"`
	Status    CascadeStatus        `json:"status"`
	Error     string               `json:"error,omitempty"`
	Mismatch  *HeaderMismatchError `json:"mismatch,omitempty"`
	Issues    []ReplayIssue        `json:"issues,omitempty"`
	RowCount  int                  `json:"rowCount"`
}

// CascadeResult reports every dependent touched by a source update.
type CascadeResult struct {
	ID        string             `json:"id"`
	SourceID  string             `json:"sourceId"`
	StartedAt time.Time          `json:"startedAt"`
	Duration  time.Duration      `json:"duration"`
	Outcomes  []DependentOutcome `json:"outcomes"`
}

// Succeeded returns the ids of recomputed dependents.
func (r CascadeResult) Succeeded() []string {
	var ids []string
	for _, o := range r.Outcomes {
		if o.Status == StatusRecomputed {
			ids = append(ids, o.DerivedID)
		}
	}
	return ids
}

// Failed returns every outcome that did not recompute.
func (r CascadeResult) Failed() []DependentOutcome {
	var out []DependentOutcome
	for _, o := range r.Outcomes {
		if o.Status != StatusRecomputed {
			out = append(out, o)
		}
	}
	return out
}

// Outcome returns the outcome for derivedID.
func (r CascadeResult) Outcome(derivedID string) (DependentOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.DerivedID == derivedID {
			return o, true
		}
	}
	return DependentOutcome{}, false
}

// Cascader rebuilds derived tables after one of their sources changed.
type Cascader struct {
	Store        Store
	Materializer *Materializer
	SampleSize   int
	// Parallel bounds concurrent rebuilds within a tier.
	Parallel int
	Logger   *slog.Logger
}

// tierState is what earlier tiers learned: new headers of tables that
// changed and which tables are stale.
type tierState struct {
	mu      sync.Mutex
	headers map[string][]string
	stale   map[string]bool
}

func (s *tierState) snapshot() (map[string][]string, map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := make(map[string][]string, len(s.headers))
	for k, v := range s.headers {
		h[k] = v
	}
	st := make(map[string]bool, len(s.stale))
	for k, v := range s.stale {
		st[k] = v
	}
	return h, st
}

// OnSourceUpdated propagates a change of sourceID to every table merged
// from it, directly or through other merged tables. Dependents are rebuilt
// tier by tier in dependency order; within a tier they run concurrently.
//
// Each dependent's recorded headers are compared with the new headers of
// every source that changed in this run. On a mismatch the dependent is
// left untouched and reported, and tables built from it are skipped. A
// failure on one dependent never stops the others.
func (c *Cascader) OnSourceUpdated(ctx context.Context, sourceID string, newHeaders []string) (CascadeResult, error) {
	result := CascadeResult{
		ID:        uuid.NewString(),
		SourceID:  sourceID,
		StartedAt: time.Now().UTC(),
		Outcomes:  []DependentOutcome{},
	}
	log := c.logger().With("cascade_id", result.ID, "source_id", sourceID)

	specs, err := c.Store.ListMerges(ctx)
	if err != nil {
		return result, fmt.Errorf("cascade: list merges: %w", err)
	}
	graph := NewDependencyGraph(specs)
	tiers, err := graph.Tiers(sourceID)
	if err != nil {
		return result, fmt.Errorf("cascade: %w", err)
	}

	state := &tierState{
		headers: map[string][]string{sourceID: newHeaders},
		stale:   map[string]bool{},
	}

	parallel := c.Parallel
	if parallel <= 0 {
		parallel = DefaultCascadeParallel
	}

	for tierNum, tier := range tiers {
		headers, stale := state.snapshot()
		outcomes := make([]rebuildOutcome, len(tier))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(parallel)
		for i, derivedID := range tier {
			spec, _ := graph.Spec(derivedID)
			g.Go(func() error {
				o := c.rebuild(gctx, spec, headers, stale)
				o.Tier = tierNum
				outcomes[i] = o

				state.mu.Lock()
				if o.Status == StatusRecomputed {
					state.headers[derivedID] = o.headers
				} else {
					state.stale[derivedID] = true
				}
				state.mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return result, fmt.Errorf("cascade: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("cascade: %w", err)
		}

		for _, o := range outcomes {
			switch o.Status {
			case StatusRecomputed:
				log.Info("dependent recomputed", "derived_id", o.DerivedID, "tier", o.Tier, "rows", o.RowCount, "issues", len(o.Issues))
			case StatusSkipped:
				log.Warn("dependent skipped", "derived_id", o.DerivedID, "tier", o.Tier, "reason", o.Error)
			default:
				log.Warn("dependent not recomputed", "derived_id", o.DerivedID, "tier", o.Tier, "status", o.Status, "error", o.Error)
			}
			result.Outcomes = append(result.Outcomes, o.DependentOutcome)
		}
	}

	result.Duration = time.Since(result.StartedAt)
	log.Info("cascade complete", "dependents", len(result.Outcomes), "failed", len(result.Failed()), "duration", result.Duration)
	return result, nil
}

// rebuildOutcome carries the new headers of a recomputed table to later
// tiers without exposing them in the result.
type rebuildOutcome struct {
	DependentOutcome
	headers []string
}

func (c *Cascader) rebuild(ctx context.Context, spec MergeSpec, changed map[string][]string, stale map[string]bool) rebuildOutcome {
	o := rebuildOutcome{DependentOutcome: DependentOutcome{DerivedID: spec.DerivedID, Name: spec.Name}}

	for _, src := range spec.Sources {
		if stale[src.SourceID] {
			o.Status = StatusSkipped
			o.Error = fmt.Sprintf("upstream table %s was not recomputed", src.SourceID)
			return o
		}
	}

	for _, src := range spec.Sources {
		newHeaders, ok := changed[src.SourceID]
		if !ok {
			continue
		}
		if mm := diffHeaders(spec.DerivedID, src.SourceID, src.Headers, newHeaders); mm != nil {
			o.Status = StatusHeaderMismatch
			o.Mismatch = mm
			o.Error = mm.Error()
			return o
		}
	}

	derived, issues, err := c.recompute(ctx, spec)
	var mm *HeaderMismatchError
	if errors.As(err, &mm) {
		o.Status = StatusHeaderMismatch
		o.Mismatch = mm
		o.Error = mm.Error()
		return o
	}
	if err != nil {
		o.Status = StatusFailed
		o.Error = err.Error()
		return o
	}
	o.Status = StatusRecomputed
	o.Issues = issues
	o.RowCount = len(derived.Rows)
	o.headers = derived.Columns
	return o
}

// recompute re-runs the merge against the stored sources, saves the result
// and replays the derived table's settings to validate them. Every source,
// not only those changed in this run, must still match the headers recorded
// for it; otherwise a *HeaderMismatchError is returned and nothing is saved.
func (c *Cascader) recompute(ctx context.Context, spec MergeSpec) (TableSource, []ReplayIssue, error) {
	sources := make(map[string]TableSource, len(spec.Sources))
	for _, id := range spec.SourceIDs() {
		src, err := c.Store.GetSource(ctx, id)
		if err != nil {
			return TableSource{}, nil, fmt.Errorf("load source %s: %w", id, err)
		}
		sources[id] = src
	}
	for _, src := range spec.Sources {
		if mm := diffHeaders(spec.DerivedID, src.SourceID, src.Headers, sources[src.SourceID].Columns); mm != nil {
			return TableSource{}, nil, mm
		}
	}

	derived, err := ExecuteMerge(spec, sources)
	if err != nil {
		return TableSource{}, nil, err
	}

	prev, err := c.Store.GetSource(ctx, spec.DerivedID)
	var nf *NotFoundError
	switch {
	case err == nil:
		derived.CreatedAt = prev.CreatedAt
	case errors.As(err, &nf):
		derived.CreatedAt = time.Now().UTC()
	default:
		return TableSource{}, nil, fmt.Errorf("load derived %s: %w", spec.DerivedID, err)
	}
	derived.UpdatedAt = time.Now().UTC()

	if err := c.Store.PutSource(ctx, derived); err != nil {
		return TableSource{}, nil, fmt.Errorf("save derived %s: %w", spec.DerivedID, err)
	}

	settings, err := c.Store.LoadSettings(ctx, spec.DerivedID)
	if err != nil {
		return derived, nil, fmt.Errorf("load settings %s: %w", spec.DerivedID, err)
	}
	if settings == nil {
		return derived, nil, nil
	}
	_, issues := Replay(ctx, c.Materializer, NewTableData(derived, c.SampleSize), *settings)
	return derived, issues, nil
}

// diffHeaders returns nil when got equals the recorded headers, order
// included.
func diffHeaders(derivedID, sourceID string, recorded, got []string) *HeaderMismatchError {
	if slices.Equal(recorded, got) {
		return nil
	}
	mm := &HeaderMismatchError{
		DerivedID: derivedID,
		SourceID:  sourceID,
		Old:       append([]string(nil), recorded...),
		New:       append([]string(nil), got...),
	}
	for _, h := range recorded {
		if !slices.Contains(got, h) {
			mm.Removed = append(mm.Removed, h)
		}
	}
	for _, h := range got {
		if !slices.Contains(recorded, h) {
			mm.Added = append(mm.Added, h)
		}
	}
	return mm
}

func (c *Cascader) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
