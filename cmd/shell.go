package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leftmike/kura/engine"
	"github.com/leftmike/kura/repl"
)

var (
	shellCmd = &cobra.Command{
		Use:   "shell [script ...]",
		Short: "Run an interactive session against the engine",
		RunE:  shellRun,
	}
)

func init() {
	kuraCmd.AddCommand(shellCmd)
}

func shellRun(cmd *cobra.Command, args []string) error {
	e, err := engine.Start(engineConfig())
	if err != nil {
		return fmt.Errorf("kura: %s", err)
	}

	if len(args) == 0 {
		repl.Interact(e)
	} else {
		for _, arg := range args {
			f, err := os.Open(arg)
			if err != nil {
				e.Close()
				return fmt.Errorf("kura: script: %s", err)
			}
			repl.RunScript(e, f, os.Stdout)
			f.Close()
		}
	}

	return e.Close()
}
