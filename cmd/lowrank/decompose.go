package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/born-ml/lowrank/internal/arch"
	"github.com/born-ml/lowrank/internal/config"
	"github.com/born-ml/lowrank/internal/decompose"
	"github.com/born-ml/lowrank/internal/metrics"
	"github.com/born-ml/lowrank/internal/serialization"
)

func runDecompose(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("decompose", flag.ContinueOnError)
	fs.SetOutput(stderr)

	archPath := fs.String("arch", "", "Architecture file (YAML, required)")
	weightsPath := fs.String("weights", "", "Weights file (SafeTensors)")
	outArch := fs.String("out-arch", "", "Output architecture file (required)")
	outWeights := fs.String("out-weights", "", "Output weights file (required)")
	configPath := fs.String("config", "", "Config file (YAML)")
	ratio := fs.Float64("ratio", decompose.DefaultRatio, "Fraction of output features to drop, in [0, 1)")
	policy := fs.String("policy", "clamp", "Rank policy: clamp or strict")
	workers := fs.Int("workers", 1, "Sibling modules factorized concurrently")
	metricsFile := fs.String("metrics-file", "", "Write Prometheus metrics to this file")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn or error")
	report := fs.Bool("report", false, "Print a per-layer report to stdout")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *archPath == "" || *outArch == "" || *outWeights == "" {
		return usageError("-arch, -out-arch and -out-weights are required")
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}

	// Flags set explicitly on the command line win over the config file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "ratio":
			cfg.Ratio = *ratio
		case "policy":
			cfg.RankPolicy = *policy
		case "workers":
			cfg.Workers = *workers
		case "metrics-file":
			cfg.MetricsFile = *metricsFile
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return usageError("%v", err)
	}

	logger := cfg.Log.NewLogger(stderr)

	a, model, err := loadModel(*archPath, *weightsPath)
	if err != nil {
		return err
	}
	if *weightsPath == "" {
		logger.Warn("no weights given, decomposing freshly initialized parameters")
	}

	rankPolicy, err := decompose.ParseRankPolicy(cfg.RankPolicy)
	if err != nil {
		return err
	}
	reg := metrics.NewRegistry()
	d, err := decompose.New(cfg.Ratio,
		decompose.WithRankPolicy(rankPolicy),
		decompose.WithWorkers(cfg.Workers),
		decompose.WithLogger(logger),
		decompose.WithMetrics(reg),
	)
	if err != nil {
		return err
	}

	res, runErr := d.Run(model)
	if cfg.MetricsFile != "" {
		if err := reg.WriteToTextfile(cfg.MetricsFile); err != nil {
			logger.Error("failed to write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	described, err := arch.Describe(a.Name, res.Model)
	if err != nil {
		return err
	}
	if err := described.Save(*outArch); err != nil {
		return err
	}

	metadata := map[string]string{
		"lowrank_version": version,
		"run_id":          res.Report.RunID,
		"ratio":           strconv.FormatFloat(cfg.Ratio, 'g', -1, 64),
		"rank_policy":     rankPolicy.String(),
		"source":          *archPath,
	}
	if err := serialization.WriteFile(*outWeights, res.Model.StateDict(), metadata); err != nil {
		return err
	}

	logger.Info("wrote decomposed model",
		"arch", *outArch,
		"weights", *outWeights,
		"compression", fmt.Sprintf("%.2fx", res.Report.CompressionFactor()),
	)

	if *report {
		return res.Report.Fprint(stdout)
	}
	return nil
}
