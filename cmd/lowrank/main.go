// Package main provides the lowrank CLI.
//
// Usage:
//
//	lowrank decompose -arch model.yaml -weights model.safetensors \
//	    -out-arch small.yaml -out-weights small.safetensors [-ratio 0.5]
//	lowrank inspect -arch model.yaml [-weights model.safetensors]
//	lowrank version
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/lowrank/internal/arch"
	"github.com/born-ml/lowrank/internal/nn"
	"github.com/born-ml/lowrank/internal/serialization"
)

const version = "v0.1.0-dev"

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}

	var err error
	switch args[0] {
	case "decompose":
		err = runDecompose(args[1:], stdout, stderr)
	case "inspect":
		err = runInspect(args[1:], stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "lowrank %s\n", version)
		return exitOK
	case "help", "-h", "-help", "--help":
		usage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return exitUsage
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "lowrank %s: %v\n", args[0], err)
		return exitUsage
	default:
		fmt.Fprintf(stderr, "lowrank %s: %v\n", args[0], err)
		return exitError
	}
}

var errUsage = errors.New("usage")

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "lowrank %s - SVD low-rank compression of linear layers\n\n", version)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  decompose  Factorize every linear layer of a model")
	fmt.Fprintln(w, "  inspect    Print a model's layers and parameter counts")
	fmt.Fprintln(w, "  version    Show version")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'lowrank <command> -h' for command flags.")
}

// loadModel builds the model described by archPath and, when weightsPath is
// set, loads its parameters. Every tensor in the weights file must belong to
// the model.
func loadModel(archPath, weightsPath string) (*arch.Architecture, nn.Module, error) {
	a, err := arch.Load(archPath)
	if err != nil {
		return nil, nil, err
	}
	model, err := arch.Build(a, nil)
	if err != nil {
		return nil, nil, err
	}
	if weightsPath == "" {
		return a, model, nil
	}

	file, err := serialization.ReadFile(weightsPath)
	if err != nil {
		return nil, nil, err
	}
	expected := model.StateDict()
	for _, name := range file.Names() {
		if _, ok := expected[name]; !ok {
			return nil, nil, fmt.Errorf("weights %s: tensor %q does not belong to the model", weightsPath, name)
		}
	}
	if err := model.LoadStateDict(file.Tensors); err != nil {
		return nil, nil, fmt.Errorf("weights %s: %w", weightsPath, err)
	}
	return a, model, nil
}
