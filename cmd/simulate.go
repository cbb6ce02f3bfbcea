package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSimulateCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "simulate [NODE...]",
		Short: "Draw unobserved nodes from their prior and print the model state",
		Long: `simulate draws the named stochastic nodes (every unobserved one when none
are named) from their prior, seeded with --seed, recalculates deterministic
nodes and prints every node value followed by the model log density.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := s.loadModel()
			if err != nil {
				return err
			}
			if err := m.Simulate(args...); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, id := range m.NodeNames() {
				v, err := m.Value(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s = %g\n", id, v)
			}

			lp, err := m.Calculate()
			if err != nil {
				fmt.Fprintf(out, "log density: %v\n", err)
				return nil
			}
			fmt.Fprintf(out, "log density: %g\n", lp)
			return nil
		},
	}
}
