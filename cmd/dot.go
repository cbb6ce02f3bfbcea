package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/CraigKelly/bayesgraph/model"
)

// TODO: optionally cluster the elements of a vector variable in a subgraph

func newDotCmd(s *settings) *cobra.Command {
	var outFile string
	cmd := &cobra.Command{
		Use:   "dot",
		Short: "Write the model graph in graphviz dot format",
		Long: `dot writes the directed graph of a model: an edge runs from every node to
each node whose expressions read it. Stochastic nodes are ellipses,
deterministic nodes boxes and free variables plain text; observed nodes are
filled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := s.loadModel()
			if err != nil {
				return err
			}
			if outFile == "" {
				return DotOutput(cmd.OutOrStdout(), m)
			}

			f, err := os.Create(outFile)
			if err != nil {
				return errors.Wrapf(err, "Could not create %s", outFile)
			}
			if err := DotOutput(f, m); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "Write to this file instead of stdout")
	return cmd
}

// DotOutput writes a graphviz description of the model to w
func DotOutput(w io.Writer, m *model.Model) error {
	reg := m.Registry()
	g := m.Graph()

	lines := []string{fmt.Sprintf("digraph %s {\n", strconv.Quote(m.Name))}
	for p := 0; p < reg.Len(); p++ {
		n := reg.Node(p)
		attrs := "shape=ellipse"
		switch n.Kind {
		case model.KindDeterministic:
			attrs = "shape=box"
		case model.KindFree:
			attrs = "shape=plaintext"
		}
		if reg.Data(p) {
			attrs += ", style=filled, fillcolor=lightgrey"
		}
		lines = append(lines, fmt.Sprintf("    %s [%s];\n", strconv.Quote(n.ID), attrs))
	}

	for child := 0; child < reg.Len(); child++ {
		for _, parent := range g.Parents(child) {
			lines = append(lines, fmt.Sprintf("    %s -> %s;\n",
				strconv.Quote(reg.Node(parent).ID), strconv.Quote(reg.Node(child).ID)))
		}
	}
	lines = append(lines, "}\n")

	for _, l := range lines {
		if _, err := io.WriteString(w, l); err != nil {
			return errors.Wrap(err, "Could not write graph")
		}
	}
	return nil
}
