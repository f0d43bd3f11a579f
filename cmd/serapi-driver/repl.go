package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/sanjit/coq-serapy/internal/driver"
)

// runREPL drives an interactive loop over s: one sentence per line, with
// history and line-editing from readline.
func runREPL(s *driver.Session) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "coq> ",
		HistoryFile:     "",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer rl.Close()

	fmt.Println("serapi-driver REPL: one sentence per line, 'undo' cancels the last, Ctrl-D exits.")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		cmd := strings.TrimSpace(line)
		if cmd == "" {
			continue
		}
		if cmd == "exit" || cmd == "quit" {
			return nil
		}
		if cmd == "undo" {
			if err := s.CancelLast(); err != nil {
				fmt.Fprintf(os.Stderr, "cancel error: %v\n", err)
				continue
			}
			fmt.Println(renderContext(s))
			continue
		}

		if err := s.RunStmt(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(renderContext(s))
	}
}
