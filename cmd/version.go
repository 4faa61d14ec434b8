package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leftmike/kura/engine"
)

func init() {
	kuraCmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number of Kura",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(engine.Version())
			},
		})
}
