package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newEDLCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "edl <descriptor.json>",
		Short: "Write the CMX 3600 edit decision list of a descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDescriptor(args[0])
			if err != nil {
				return err
			}
			edl := d.EDL()
			if output == "" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), edl)
				return err
			}
			if err := os.WriteFile(output, []byte(edl), 0o644); err != nil {
				return fmt.Errorf("failed to write edl: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}
