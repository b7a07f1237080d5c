package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"keyframes-backend/internal/export"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "keyframesctl",
		Short:         "Inspect Keyframes export descriptors",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newSceneCommand())
	rootCmd.AddCommand(newActiveCommand())
	rootCmd.AddCommand(newFramesCommand())
	rootCmd.AddCommand(newEDLCommand())

	return rootCmd
}

func loadDescriptor(path string) (*export.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}
	return export.Parse(data)
}

// parseTime accepts Go durations ("1.5s", "250ms") or bare milliseconds.
func parseTime(raw string) (int64, error) {
	if d, err := time.ParseDuration(raw); err == nil {
		return d.Milliseconds(), nil
	}
	var ms int64
	if _, err := fmt.Sscanf(raw, "%d", &ms); err != nil {
		return 0, fmt.Errorf("invalid time %q", raw)
	}
	return ms, nil
}

func formatMs(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}
