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
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajroetker/mechgen/mech/ast"
	"github.com/ajroetker/mechgen/mech/defuse"
	"github.com/ajroetker/mechgen/mech/localize"
	"github.com/ajroetker/mechgen/mech/modelio"
)

type analyzeConfig struct {
	variable       string
	compact        bool
	ignoreVerbatim bool
}

func newAnalyzeCmd(root *rootFlags) *cobra.Command {
	cfg := &analyzeConfig{}
	cmd := &cobra.Command{
		Use:   "analyze [flags] model.json",
		Short: "Print the localization report or the def-use chains of a variable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := root.logger(cmd.ErrOrStderr())
			m, err := modelio.Load(args[0])
			if err != nil {
				return err
			}
			logger.Debug("loaded", "model", m.Suffix, "blocks", len(m.Blocks))
			if cfg.variable != "" {
				return printChains(cmd.OutOrStdout(), m, cfg)
			}
			return printReport(cmd.OutOrStdout(), m, cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.variable, "var", "", "print the def-use chain of this variable in every block")
	f.BoolVar(&cfg.compact, "compact", false, "print chains on one line")
	f.BoolVar(&cfg.ignoreVerbatim, "ignore-verbatim", false, "assume VERBATIM code touches no variable")
	return cmd
}

// printChains writes one chain per top-level block, followed by its
// evaluation.
func printChains(w io.Writer, m *ast.Model, cfg *analyzeConfig) error {
	var opts []defuse.Option
	if cfg.ignoreVerbatim {
		opts = append(opts, defuse.WithIgnoreVerbatim())
	}
	for _, tb := range m.Blocks {
		if tb.Body == nil {
			continue
		}
		chain := defuse.AnalyzeBlock(tb, cfg.variable, m.Scope(), opts...)
		if tb.Name != "" {
			chain.Name += " " + tb.Name
		}
		if _, err := fmt.Fprintf(w, "%s\n=> %s\n", chain.JSON(cfg.compact), chain.Eval()); err != nil {
			return err
		}
	}
	return nil
}

// printReport runs the localization pass and lists every candidate with the
// state it has in each block.
func printReport(w io.Writer, m *ast.Model, cfg *analyzeConfig) error {
	var opts []localize.Option
	if cfg.ignoreVerbatim {
		opts = append(opts, localize.WithIgnoreVerbatim())
	}
	report, err := localize.Run(m, opts...)
	if err != nil {
		return err
	}
	for _, v := range report.Variables {
		verdict := "localized"
		if !v.Localized {
			verdict = "kept: " + v.Reason
		}
		states := make([]string, len(v.Blocks))
		for i, b := range v.Blocks {
			states[i] = b.Label + "=" + b.State.String()
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", v.Name, verdict, strings.Join(states, " ")); err != nil {
			return err
		}
	}
	return nil
}
