package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/claude/hevysync/internal/fit"
)

func newInspectCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.fit>",
		Short: "Decode a FIT activity file and print its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			msgs, err := fit.Decode(data)
			if err != nil {
				return fmt.Errorf("decoding %s: %w", args[0], err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%s: %d bytes, %d messages", args[0], len(data), len(msgs))))
			for i, m := range msgs {
				fmt.Fprintf(out, "%4d  %s\n", i, fit.Describe(m))
			}
			return nil
		},
	}
}
