// Package decompose compresses a model by replacing every linear layer with
// a low-rank pair of linear layers obtained from a truncated SVD.
//
// The input model is never modified: a Decomposer clones it first, rewrites
// the clone and returns it.
//
// Example:
//
//	compressed, err := decompose.Decompose(model, 0.5)
//	if errors.Is(err, decompose.ErrInvalidArgument) {
//	    ...
//	}
package decompose

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/lowrank/internal/metrics"
	"github.com/born-ml/lowrank/internal/nn"
)

// DefaultRatio is the fraction of rank discarded when callers do not choose one.
const DefaultRatio = 0.5

// Decomposer walks a module tree and factorizes its linear layers.
//
// A Decomposer is immutable after New and safe for concurrent use.
type Decomposer struct {
	ratio   float64
	policy  RankPolicy
	workers int
	logger  *slog.Logger
	metrics *metrics.Registry
}

// Option configures a Decomposer.
type Option func(*Decomposer)

// WithRankPolicy sets how out-of-range ranks are handled (default RankClamp).
func WithRankPolicy(p RankPolicy) Option {
	return func(d *Decomposer) {
		d.policy = p
	}
}

// WithWorkers sets how many children of one container are factorized
// concurrently. Values below 1 mean 1.
func WithWorkers(n int) Option {
	return func(d *Decomposer) {
		d.workers = max(1, n)
	}
}

// WithLogger sets the logger. The default discards all records.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decomposer) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics records run and layer metrics into r.
func WithMetrics(r *metrics.Registry) Option {
	return func(d *Decomposer) {
		d.metrics = r
	}
}

// New creates a Decomposer that discards the given fraction of rank.
func New(ratio float64, opts ...Option) (*Decomposer, error) {
	if err := ValidateRatio(ratio); err != nil {
		return nil, err
	}
	d := &Decomposer{
		ratio:   ratio,
		policy:  RankClamp,
		workers: 1,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.policy != RankClamp && d.policy != RankStrict {
		return nil, invalidArgument("unknown rank policy %d", int(d.policy))
	}
	return d, nil
}

// Ratio returns the fraction of rank discarded per layer.
func (d *Decomposer) Ratio() float64 {
	return d.ratio
}

// Result is the output of a decomposition run.
type Result struct {
	Model  nn.Module // Decomposed copy of the input
	Report *Report   // Per-layer details and totals
}

// Decompose is a convenience wrapper around New and Run that returns only
// the decomposed model.
func Decompose(model nn.Module, ratio float64) (nn.Module, error) {
	d, err := New(ratio)
	if err != nil {
		return nil, err
	}
	return d.Decompose(model)
}

// Decompose returns a decomposed copy of model.
func (d *Decomposer) Decompose(model nn.Module) (nn.Module, error) {
	res, err := d.Run(model)
	if err != nil {
		return nil, err
	}
	return res.Model, nil
}

// Run returns a decomposed copy of model together with a report.
//
// model must be a container with at least one child. Any error aborts the
// whole run; model is left untouched either way.
func (d *Decomposer) Run(model nn.Module) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()

	result, err := d.run(model, runID)

	if d.metrics != nil {
		var before, after int
		if result != nil {
			before, after = result.Report.ParamsBefore, result.Report.ParamsAfter
		}
		d.metrics.RecordRun(err, time.Since(start), before, after)
	}

	if err != nil {
		d.logger.Error("decomposition failed", "run_id", runID, "error", err)
		return nil, err
	}

	result.Report.Duration = time.Since(start)
	d.logger.Info("decomposition complete",
		"run_id", runID,
		"ratio", d.ratio,
		"layers", len(result.Report.Layers),
		"params_before", result.Report.ParamsBefore,
		"params_after", result.Report.ParamsAfter,
		"duration", result.Report.Duration,
	)
	return result, nil
}

func (d *Decomposer) run(model nn.Module, runID string) (*Result, error) {
	if model == nil {
		return nil, invalidArgument("model is nil")
	}
	root, ok := model.(nn.Container)
	if !ok {
		return nil, invalidArgument("model must be a container, got %s", nn.TypeName(model))
	}
	if len(root.ChildNames()) == 0 {
		return nil, invalidArgument("model has no children")
	}
	if err := checkTree(root); err != nil {
		return nil, err
	}

	owned := nn.Clone(root).(nn.Container)

	layers, err := d.decompose(owned, "")
	if err != nil {
		return nil, err
	}

	return &Result{
		Model: owned,
		Report: &Report{
			RunID:        runID,
			Ratio:        d.ratio,
			Policy:       d.policy,
			Layers:       layers,
			ParamsBefore: nn.CountParameters(model),
			ParamsAfter:  nn.CountParameters(owned),
		},
	}, nil
}

// checkTree rejects trees with nil modules, which cannot be cloned.
func checkTree(root nn.Module) error {
	return nn.Walk(root, func(path string, m nn.Module) error {
		if m == nil {
			return withPath(invalidArgument("module is nil"), path)
		}
		return nil
	})
}

// childResult is what one child of a container turns into.
type childResult struct {
	module nn.Module
	layers []LayerReport
}

// decompose rewrites c in place. c must be exclusively owned by the caller.
func (d *Decomposer) decompose(c nn.Container, path string) ([]LayerReport, error) {
	names := c.ChildNames()
	results := make([]childResult, len(names))

	process := func(i int) error {
		res, err := d.transformChild(c, path, names[i])
		if err != nil {
			return err
		}
		results[i] = res
		return nil
	}

	if d.workers > 1 && len(names) > 1 {
		// The first failure cancels siblings that have not started yet.
		g, ctx := errgroup.WithContext(context.Background())
		g.SetLimit(d.workers)
		for i := range names {
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				return process(i)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range names {
			if err := process(i); err != nil {
				return nil, err
			}
		}
	}

	if got := len(c.ChildNames()); got != len(names) {
		return nil, structuralMismatch(path, nil, "child count changed from %d to %d", len(names), got)
	}

	var layers []LayerReport
	for i, name := range names {
		if err := c.SetChild(name, results[i].module); err != nil {
			return nil, structuralMismatch(nn.JoinPath(path, name), err, "cannot replace child")
		}
		layers = append(layers, results[i].layers...)
	}
	return layers, nil
}

func (d *Decomposer) transformChild(c nn.Container, path, name string) (childResult, error) {
	childPath := nn.JoinPath(path, name)
	child, ok := c.Child(name)
	if !ok {
		return childResult{}, structuralMismatch(childPath, nil, "child disappeared during traversal")
	}

	switch nn.Classify(child) {
	case nn.KindContainer:
		layers, err := d.decompose(child.(nn.Container), childPath)
		if err != nil {
			return childResult{}, err
		}
		return childResult{module: child, layers: layers}, nil

	case nn.KindLinear:
		seq, report, err := Factorize(child.(*nn.Linear), d.ratio, d.policy)
		if err != nil {
			return childResult{}, withPath(err, childPath)
		}
		report.Path = childPath

		d.logger.Debug("factorized linear layer",
			"path", childPath,
			"in", report.InFeatures,
			"out", report.OutFeatures,
			"rank", report.Rank,
			"clamped", report.Clamped,
			"rel_error", report.RelativeError,
		)
		if d.metrics != nil {
			d.metrics.RecordLayer(report.SVDDuration, report.RelativeError, report.Clamped)
		}
		return childResult{module: seq, layers: []LayerReport{*report}}, nil

	default:
		if d.metrics != nil {
			d.metrics.RecordSkipped(nn.TypeName(child))
		}
		return childResult{module: child}, nil
	}
}
