package decompose

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// Report summarizes a decomposition run.
type Report struct {
	RunID        string
	Ratio        float64
	Policy       RankPolicy
	Layers       []LayerReport // In traversal order
	ParamsBefore int
	ParamsAfter  int
	Duration     time.Duration
}

// CompressionFactor returns ParamsBefore / ParamsAfter, or 0 for an empty
// output.
func (r *Report) CompressionFactor() float64 {
	if r.ParamsAfter == 0 {
		return 0
	}
	return float64(r.ParamsBefore) / float64(r.ParamsAfter)
}

// ClampedLayers returns the number of layers whose rank was clamped.
func (r *Report) ClampedLayers() int {
	n := 0
	for _, l := range r.Layers {
		if l.Clamped {
			n++
		}
	}
	return n
}

// Fprint writes a human-readable table of the report to w.
func (r *Report) Fprint(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "run %s  ratio=%g  policy=%s\n\n", r.RunID, r.Ratio, r.Policy)
	fmt.Fprintln(tw, "LAYER\tIN\tOUT\tRANK\tPARAMS\tREL ERROR\t")
	for _, l := range r.Layers {
		rank := fmt.Sprint(l.Rank)
		if l.Clamped {
			rank = fmt.Sprintf("%d (asked %d)", l.Rank, l.RequestedRank)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d → %d\t%.4f\t\n",
			l.Path, l.InFeatures, l.OutFeatures, rank, l.ParamsBefore, l.ParamsAfter, l.RelativeError)
	}
	fmt.Fprintf(tw, "\ntotal\t\t\t\t%d → %d\t%.2fx\t\n", r.ParamsBefore, r.ParamsAfter, r.CompressionFactor())

	return tw.Flush()
}
