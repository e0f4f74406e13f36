// Copyright 2025 mechgen Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"

	"github.com/ajroetker/mechgen/internal/workerpool"
	"github.com/ajroetker/mechgen/mech/codegen"
	"github.com/ajroetker/mechgen/mech/localize"
	"github.com/ajroetker/mechgen/mech/modelio"
)

// generateConfig holds the generate command flags.
type generateConfig struct {
	outputDir        string
	backend          string
	floatType        string
	jobs             int
	ionVarCopies     bool
	localize         bool
	localizeVerbatim bool
}

func newGenerateCmd(root *rootFlags) *cobra.Command {
	cfg := &generateConfig{}
	cmd := &cobra.Command{
		Use:   "generate [flags] model.json...",
		Short: "Generate one C++ module per model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := root.logger(cmd.ErrOrStderr())
			return runGenerate(cmd.Context(), cfg, args, logger)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&cfg.outputDir, "output", "o", env.Str("MECHGEN_OUTPUT", "."), "directory receiving the generated modules")
	f.StringVar(&cfg.backend, "backend", "cpu", "code generation backend")
	f.StringVar(&cfg.floatType, "float-type", env.Str("MECHGEN_FLOAT_TYPE", "double"), "C type of private per-instance storage (double or float)")
	f.IntVarP(&cfg.jobs, "jobs", "j", env.Int("MECHGEN_JOBS", 0), "models compiled concurrently, 0 for GOMAXPROCS")
	f.BoolVar(&cfg.ionVarCopies, "optimize-ionvar-copies", false, "route ion writes through a per-instance copy")
	f.BoolVar(&cfg.localize, "localize", false, "demote variables that carry no value between callbacks to locals")
	f.BoolVar(&cfg.localizeVerbatim, "localize-verbatim", false, "with --localize, assume VERBATIM code touches no variable")
	return cmd
}

// options converts the flags into generator options.
func (cfg *generateConfig) options() (codegen.Options, error) {
	backend, err := codegen.BackendByName(cfg.backend)
	if err != nil {
		return codegen.Options{}, err
	}
	opts := codegen.Options{
		FloatType:            cfg.floatType,
		Backend:              backend,
		OptimizeIonVarCopies: cfg.ionVarCopies,
		Version:              version,
	}
	if err := opts.Validate(); err != nil {
		return codegen.Options{}, err
	}
	return opts, nil
}

// runGenerate compiles every model. A failing model is logged and does not
// stop the others; the returned error counts the failures.
func runGenerate(ctx context.Context, cfg *generateConfig, paths []string, logger *slog.Logger) error {
	opts, err := cfg.options()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	pool := workerpool.New(cfg.jobs)
	defer pool.Close()
	logger.Debug("compiling", "models", len(paths), "workers", pool.NumWorkers())

	errs := pool.Run(ctx, len(paths), func(_ context.Context, i int) error {
		out, err := cfg.compile(paths[i], opts, logger)
		if err != nil {
			return err
		}
		logger.Debug("wrote module", "model", paths[i], "output", out)
		return nil
	})

	var failed int
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed++
		attrs := []any{"model", paths[i], "err", err}
		var ie *codegen.InternalError
		if errors.As(err, &ie) {
			attrs = append(attrs, "category", ie.Category.String())
		}
		logger.Error("generation failed", attrs...)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d models failed", failed, len(paths))
	}
	return nil
}

// compile generates one model and returns the path written.
func (cfg *generateConfig) compile(path string, opts codegen.Options, logger *slog.Logger) (string, error) {
	m, err := modelio.Load(path)
	if err != nil {
		return "", err
	}
	if cfg.localize {
		var lopts []localize.Option
		if cfg.localizeVerbatim {
			lopts = append(lopts, localize.WithIgnoreVerbatim())
		}
		report, err := localize.Run(m, lopts...)
		if err != nil {
			return "", err
		}
		if names := report.Localized(); len(names) > 0 {
			logger.Debug("localized", "model", m.Suffix, "variables", strings.Join(names, ","))
		}
	}
	code, err := codegen.Generate(m, opts)
	if err != nil {
		return "", err
	}
	out := filepath.Join(cfg.outputDir, m.File+".cpp")
	if err := os.WriteFile(out, []byte(code), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	return out, nil
}
