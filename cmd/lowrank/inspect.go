package main

import (
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/born-ml/lowrank/internal/nn"
)

func runInspect(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)

	archPath := fs.String("arch", "", "Architecture file (YAML, required)")
	weightsPath := fs.String("weights", "", "Weights file (SafeTensors)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *archPath == "" {
		return usageError("-arch is required")
	}

	a, model, err := loadModel(*archPath, *weightsPath)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	if a.Name != "" {
		fmt.Fprintf(tw, "model %s\n\n", a.Name)
	}
	fmt.Fprintln(tw, "PATH\tTYPE\tDETAILS\tPARAMS\t")
	err = nn.Walk(model, func(path string, m nn.Module) error {
		if path == "" {
			path = "(root)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t\n", path, nn.TypeName(m), details(m), nn.CountParameters(m))
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(tw, "\ntotal\t\t\t%d\t\n", nn.CountParameters(model))
	return tw.Flush()
}

func details(m nn.Module) string {
	switch v := m.(type) {
	case *nn.Linear:
		bias := ""
		if !v.HasBias() {
			bias = " no-bias"
		}
		return fmt.Sprintf("%d -> %d%s", v.InFeatures(), v.OutFeatures(), bias)
	case *nn.LayerNorm:
		return fmt.Sprintf("features=%d eps=%g", v.Features(), v.Epsilon)
	case nn.Container:
		return fmt.Sprintf("%d children", len(v.ChildNames()))
	default:
		return "-"
	}
}
