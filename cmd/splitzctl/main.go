// Package main is splitzctl, a debugging companion for the splitz SDK: it
// reproduces the deterministic bucketing hashes, evaluates feature flags
// against a local configuration snapshot, and manages the visitor-store
// schema.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matt-riley/splitz/internal/hashing"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "splitzctl",
		Short:         "Inspect and debug splitz SDK bucketing and configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newHashCmd(), newMEGroupCmd(), newEvaluateCmd(), newMigrateCmd())
	return root
}

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <visitor-code> <container-id> [respool-time...]",
		Short: "Print the allocation hash for a visitor in a container",
		Long: `Prints the deterministic allocation hash in [0,1) used to pick a
variation from a deviation table. Optional respool timestamps (unix
seconds) are appended the same way a repooled rule appends them.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			containerID, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("parse container id %q: %w", args[1], err)
			}
			respoolTimes := make([]int64, 0, len(args)-2)
			for _, arg := range args[2:] {
				t, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("parse respool time %q: %w", arg, err)
				}
				respoolTimes = append(respoolTimes, t)
			}

			hash := hashing.ObtainHashDouble(args[0], containerID, respoolTimes...)
			fmt.Fprintf(cmd.OutOrStdout(), "%.17g\n", hash)
			return nil
		},
	}
}

func newMEGroupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "megroup <visitor-code> <group-name> <group-size>",
		Short: "Print the elected member index within a mutually-exclusive group",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("parse group size %q: %w", args[2], err)
			}
			if size <= 0 {
				return fmt.Errorf("group size must be positive, got %d", size)
			}

			hash := hashing.ObtainHashDoubleMEGroup(args[0], args[1])
			index := int(hash * float64(size))
			if index >= size {
				index = size - 1
			}
			fmt.Fprintf(cmd.OutOrStdout(), "hash=%.17g index=%d\n", hash, index)
			return nil
		},
	}
}
