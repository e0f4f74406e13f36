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
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"
)

type rootFlags struct {
	verbose bool
}

// newRootCmd builds the command tree. Flag defaults come from the
// environment as it is when the tree is built.
func newRootCmd() *cobra.Command {
	env.Load()
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:          "mechgen",
		Short:        "Compile NMODL mechanisms into CoreNEURON C++ modules",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", env.Bool("MECHGEN_VERBOSE"),
		"log progress at debug level")

	root.AddCommand(
		newGenerateCmd(flags),
		newAnalyzeCmd(flags),
		newVersionCmd(),
	)
	return root
}

// logger writes text records to w, at debug level when verbose.
func (f *rootFlags) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the generator version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "mechgen %s\n", version)
			return err
		},
	}
}
