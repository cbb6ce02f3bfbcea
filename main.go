package main

import "github.com/CraigKelly/bayesgraph/cmd"

// TODO: checkpointing for chains (so a run can be frozen and continued)

func main() {
	cmd.Execute()
}
