package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/leftmike/kura/engine"
)

var (
	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the kura engine and hold it open",
		RunE:  startRun,
	}

	checkpointEvery = time.Duration(0)
)

func init() {
	cfg.DurationVar(&checkpointEvery, "checkpoint-every", checkpointEvery,
		"write a checkpoint periodically; 0 disables")

	kuraCmd.AddCommand(startCmd)
}

func startRun(cmd *cobra.Command, args []string) error {
	e, err := engine.Start(engineConfig())
	if err != nil {
		return fmt.Errorf("kura: %s", err)
	}

	stop := make(chan struct{})
	if checkpointEvery > 0 {
		go func() {
			tick := time.NewTicker(checkpointEvery)
			defer tick.Stop()
			for {
				select {
				case <-tick.C:
					err := e.Checkpoint()
					if err != nil {
						fmt.Fprintf(os.Stderr, "kura: checkpoint: %s\n", err)
					}
				case <-stop:
					return
				}
			}
		}()
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)

	fmt.Println("kura: waiting for ^C to shutdown")
	<-ch
	go func() {
		<-ch
		os.Exit(0)
	}()

	fmt.Println("kura: shutting down")
	close(stop)
	return e.Close()
}
