package main

// proof-trace steps through every sentence in a .v file and prints the full
// proof state returned by sertop at each step. For debugging.

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/sanjit/coq-serapy/internal/driver"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: proof-trace <file.v> [-- prover command and flags...]\n")
		os.Exit(1)
	}

	file := os.Args[1]
	var coqArgs []string
	for i, arg := range os.Args[2:] {
		if arg == "--" {
			coqArgs = os.Args[i+3:]
			break
		}
	}

	contents, err := os.ReadFile(file)
	if err != nil {
		log.Fatalf("read %s: %v", file, err)
	}

	cfg := driver.DefaultConfig()
	if len(coqArgs) > 0 {
		cfg.CoqCommand = coqArgs
	}
	cfg.ModulePath = file
	if wd, err := os.Getwd(); err == nil {
		cfg.ProjectPath = wd
	}

	s, err := driver.NewSession(cfg)
	if err != nil {
		log.Fatalf("open session: %v", err)
	}
	defer s.Kill()

	sentences := driver.SplitSentences(string(contents))

	step := 0
	for _, sentence := range sentences {
		step++
		fmt.Printf("=== Step %d ===\n", step)
		fmt.Printf("> %s\n\n", sentence)

		if err := s.RunStmt(sentence); err != nil {
			fmt.Printf("Error: %v\n\n", err)
			continue
		}

		pc := s.ProofContext()
		if pc == nil || len(pc.Fg) == 0 {
			fmt.Println("Focused Goals (0)")
		} else {
			fmt.Printf("Focused Goals (%d):\n", len(pc.Fg))
			for i, g := range pc.Fg {
				if len(pc.Fg) > 1 {
					fmt.Printf("Goal %d:\n", i+1)
				}
				for _, h := range g.Hypotheses {
					fmt.Printf("  %s : %s\n", strings.Join(h.Names, " "), h.Type.Pretty)
				}
				fmt.Printf("  --------------------\n  %s\n", g.Goal.Pretty)
			}
			fmt.Printf("Unfocused: %d\n", len(pc.Bg)+len(pc.Shelved)+len(pc.GivenUp))
		}
		fmt.Println()
	}

	fmt.Printf("--- Done: %d steps ---\n", step)
}
