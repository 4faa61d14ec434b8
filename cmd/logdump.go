package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/leftmike/kura/repl"
	"github.com/leftmike/kura/storage"
	"github.com/leftmike/kura/wal"
)

func init() {
	kuraCmd.AddCommand(
		&cobra.Command{
			Use:   "logs",
			Short: "Dump the write ahead log, newest record first",
			RunE:  logsRun,
		})
}

// logsRun opens the store directly, without running recovery, so the log
// can be inspected exactly as a crashed engine left it.
func logsRun(cmd *cobra.Command, args []string) error {
	st, err := storage.Open(store, dataDir, blockSize, false, log.StandardLogger())
	if err != nil {
		return fmt.Errorf("kura: %s", err)
	}
	defer st.Close()

	lm, err := wal.NewManager(st, walFile)
	if err != nil {
		return fmt.Errorf("kura: %s", err)
	}
	return repl.DumpLog(lm, os.Stdout)
}
