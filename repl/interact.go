package repl

import (
	"fmt"
	"os"

	"github.com/peterh/liner"

	"github.com/leftmike/kura/engine"
)

const (
	kuraHistory = ".kura_history"
)

// Interact runs the repl on the terminal with line editing and history.
func Interact(e *engine.Engine) {
	line := liner.NewLiner()
	defer line.Close()

	if f, err := os.Open(kuraHistory); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	Repl(e,
		func() (string, error) {
			s, err := line.Prompt("kura: ")
			if err != nil {
				return "", err
			}
			line.AppendHistory(s)
			return s, nil
		}, os.Stdout)

	if f, err := os.Create(kuraHistory); err != nil {
		fmt.Fprintf(os.Stderr, "kura: error writing history file, %s: %s", kuraHistory, err)
	} else {
		line.WriteHistory(f)
		f.Close()
	}
}
