package worker

import "github.com/spf13/cobra"

// NewWorkerCmd returns the parent "worker" command. cfgPath points at the
// root --config flag value.
func NewWorkerCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background workers",
	}
	// attach subcommands
	cmd.AddCommand(newDrainCmd(cfgPath))

	return cmd
}
