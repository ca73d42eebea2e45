package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) newVersionCommand() *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Inspect or update the persisted algorithm version",
	}

	versionCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the persisted algorithm version and the running generator hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.loadApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			hash, err := a.Tracker.ComputeHash()
			if err != nil {
				return err
			}
			state := a.Tracker.GetState()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version:       %d\n", state.Version)
			fmt.Fprintf(out, "hash:          %s\n", state.CurrentHash)
			fmt.Fprintf(out, "previous hash: %s\n", state.PreviousHash)
			fmt.Fprintf(out, "running hash:  %s\n", hash)
			if hash != state.CurrentHash {
				warn.Fprintln(cmd.ErrOrStderr(), "running generator differs from the persisted version; run 'matchctl version bump'")
			}
			return nil
		},
	})

	versionCmd.AddCommand(&cobra.Command{
		Use:   "bump",
		Short: "Record the running generator, incrementing or rolling back the version as needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.loadApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			before := a.Tracker.GetState()
			after, err := a.Tracker.StoreOrIncrement(cmd.Context())
			if err != nil {
				return err
			}

			if after == before {
				fmt.Fprintf(cmd.OutOrStdout(), "algorithm version unchanged at %d\n", after.Version)
				return nil
			}
			success.Fprintf(cmd.OutOrStdout(), "algorithm version %d -> %d\n", before.Version, after.Version)
			return nil
		},
	})

	return versionCmd
}
