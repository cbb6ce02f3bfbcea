package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/CraigKelly/bayesgraph/sampler"
)

func newCheckCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Build a model and show its nodes and default sampler assignments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := s.loadModel()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Model %s: %d nodes, %d variables\n", m.Name, m.Registry().Len(), len(m.VarNames()))

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NODE\tROLE\tVALUE")
			for _, id := range m.NodeNames() {
				role, err := m.Role(id)
				if err != nil {
					return err
				}
				v, err := m.Value(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%g\n", id, role, v)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			lp, err := m.LogDensity()
			if err != nil {
				fmt.Fprintf(out, "\nLog density: %v\n", err)
			} else {
				fmt.Fprintf(out, "\nLog density: %g\n", lp)
			}

			conf, err := sampler.Configure(m, sampler.WithLogger(s.log))
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROCEDURE\tTARGETS")
			for _, a := range conf.Assignments() {
				fmt.Fprintf(tw, "%s\t%s\n", a.Procedure, strings.Join(a.Targets, " "))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nMonitors: %s\n", strings.Join(conf.Monitors(), " "))
			return nil
		},
	}
}
