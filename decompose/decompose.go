// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package decompose compresses models by replacing every linear layer with a
// low-rank pair of linear layers obtained from a truncated SVD.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/lowrank/decompose"
//	    "github.com/born-ml/lowrank/nn"
//	)
//
//	func main() {
//	    model := nn.NewDict().
//	        MustAdd("fc1", nn.NewLinear(784, 256)).
//	        MustAdd("act", nn.NewReLU()).
//	        MustAdd("fc2", nn.NewLinear(256, 10))
//
//	    // Keep half of each layer's output rank.
//	    compressed, err := decompose.Decompose(model, 0.5)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// Each Linear(in, out) becomes Sequential(Linear(in, L, no bias), Linear(L, out))
// with L = floor((1 - ratio) * out). The input model is never modified.
//
// # Options
//
//	d, err := decompose.New(0.75,
//	    decompose.WithRankPolicy(decompose.RankStrict),
//	    decompose.WithWorkers(4),
//	    decompose.WithLogger(slog.Default()),
//	)
//	res, err := d.Run(model)
//	res.Report.Fprint(os.Stdout)
package decompose

import (
	"log/slog"

	"github.com/born-ml/lowrank/internal/decompose"
	"github.com/born-ml/lowrank/internal/metrics"
	"github.com/born-ml/lowrank/nn"
)

// DefaultRatio is the fraction of rank discarded when callers do not choose one.
const DefaultRatio = decompose.DefaultRatio

// Error kinds, matched with errors.Is.
var (
	ErrInvalidArgument    = decompose.ErrInvalidArgument
	ErrComputation        = decompose.ErrComputation
	ErrStructuralMismatch = decompose.ErrStructuralMismatch
)

// Error provides the kind, module path and cause of a failed run.
type Error = decompose.Error

// RankPolicy controls ranks outside [1, min(in, out)].
type RankPolicy = decompose.RankPolicy

// Rank policies.
const (
	RankClamp  = decompose.RankClamp
	RankStrict = decompose.RankStrict
)

// Decomposer walks a module tree and factorizes its linear layers.
type Decomposer = decompose.Decomposer

// Option configures a Decomposer.
type Option = decompose.Option

// Result is the output of Decomposer.Run.
type Result = decompose.Result

// Report summarizes a decomposition run.
type Report = decompose.Report

// LayerReport describes one factorized layer.
type LayerReport = decompose.LayerReport

// Metrics holds the Prometheus collectors a Decomposer records into.
type Metrics = metrics.Registry

// NewMetrics creates a Metrics backed by its own Prometheus registry.
func NewMetrics() *Metrics {
	return metrics.NewRegistry()
}

// New creates a Decomposer that discards the given fraction of rank.
func New(ratio float64, opts ...Option) (*Decomposer, error) {
	return decompose.New(ratio, opts...)
}

// WithRankPolicy sets how out-of-range ranks are handled (default RankClamp).
func WithRankPolicy(p RankPolicy) Option {
	return decompose.WithRankPolicy(p)
}

// WithWorkers sets how many siblings are factorized concurrently.
func WithWorkers(n int) Option {
	return decompose.WithWorkers(n)
}

// WithLogger sets the logger. The default discards all records.
func WithLogger(l *slog.Logger) Option {
	return decompose.WithLogger(l)
}

// WithMetrics records run and layer metrics into m.
func WithMetrics(m *Metrics) Option {
	return decompose.WithMetrics(m)
}

// ParseRankPolicy parses "clamp" or "strict".
func ParseRankPolicy(s string) (RankPolicy, error) {
	return decompose.ParseRankPolicy(s)
}

// Decompose returns a copy of model with every Linear leaf factorized.
func Decompose(model nn.Module, ratio float64) (nn.Module, error) {
	return decompose.Decompose(model, ratio)
}

// Factorize splits one linear layer into a two-layer Sequential.
func Factorize(layer *nn.Linear, ratio float64) (*nn.Sequential, error) {
	seq, _, err := decompose.Factorize(layer, ratio, decompose.RankClamp)
	return seq, err
}
