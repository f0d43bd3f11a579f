// Command serapi-driver is a standalone CLI over the proof-session driver,
// useful for interactively exercising a project's prelude and running a
// source file outside of the MCP tool surface.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sanjit/coq-serapy/internal/driver"
)

var (
	flagSertop      string
	flagPrelude     string
	flagIncludes    []string
	flagSrcfiles    []string
	flagInteractive bool
	flagVerbose     bool
	flagProgress    bool
	flagTimeout     time.Duration
	flagConfig      string
)

func main() {
	root := &cobra.Command{
		Use:   "serapi-driver",
		Short: "Drive a Rocq/Coq prover subprocess from the command line",
		RunE:  run,
	}

	root.Flags().StringVar(&flagSertop, "sertop", "sertop", "path to the sertop binary")
	root.Flags().StringVar(&flagPrelude, "prelude", "", "module path used to discover the project's _CoqProject prelude")
	root.Flags().StringSliceVar(&flagIncludes, "includes", nil, "additional -R/-Q/-I style include (DIR,LOGICAL or DIR alone for an ML path)")
	root.Flags().StringArrayVar(&flagSrcfiles, "srcfile", nil, ".v files to run sentence by sentence (repeatable)")
	root.Flags().BoolVar(&flagInteractive, "interactive", false, "drop into a REPL after running the srcfiles (or immediately, if none)")
	root.Flags().BoolVar(&flagVerbose, "verbose", false, "log outgoing sentences and skipped prover chatter")
	root.Flags().BoolVar(&flagProgress, "progress", false, "print a sentence counter while running srcfiles")
	root.Flags().DurationVar(&flagTimeout, "timeout", 30*time.Second, "per-sentence timeout before the driver sends an interrupt")
	root.Flags().StringVar(&flagConfig, "config", "", "optional YAML config file layered under these flags (a setting the flags already hold, defaults included, is kept)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := driver.DefaultConfig()
	cfg.CoqCommand = []string{flagSertop, "--implicit", "--omit_loc"}
	cfg.ModulePath = flagPrelude
	cfg.Timeout = flagTimeout
	if flagVerbose {
		cfg.Verbose = 2
	}
	if wd, err := os.Getwd(); err == nil {
		cfg.ProjectPath = wd
	}

	if flagConfig != "" {
		loaded, err := driver.LoadConfigFile(flagConfig, cfg)
		if err != nil {
			return fmt.Errorf("loading config file: %w", err)
		}
		cfg = loaded
	}

	s, err := driver.NewSession(cfg)
	if err != nil {
		return fmt.Errorf("starting prover session: %w", err)
	}
	defer s.Kill()

	for _, inc := range flagIncludes {
		stmt, err := includeVernac(inc)
		if err != nil {
			return err
		}
		if err := s.RunStmt(stmt); err != nil {
			return fmt.Errorf("running --includes %q: %w", inc, err)
		}
	}

	for _, srcfile := range flagSrcfiles {
		contents, err := os.ReadFile(srcfile)
		if err != nil {
			return fmt.Errorf("reading %s: %w", srcfile, err)
		}
		sentences := driver.SplitSentences(string(contents))
		for i, sentence := range sentences {
			if flagProgress {
				fmt.Fprintf(os.Stderr, "\r%s: %d/%d", srcfile, i+1, len(sentences))
			}
			if err := s.RunStmt(sentence); err != nil {
				fmt.Fprintf(os.Stderr, "\n%s\n  error: %v\n", sentence, err)
				continue
			}
			if !flagProgress {
				fmt.Println(renderContext(s))
			}
		}
		if flagProgress {
			fmt.Fprintln(os.Stderr)
		}
	}

	if flagInteractive || len(flagSrcfiles) == 0 {
		return runREPL(s)
	}
	return nil
}

// includeVernac turns an --includes DIR,LOGICAL (or bare DIR, for a -I
// style ML path) flag value into the LoadPath/ML Path vernacular used for
// _CoqProject entries.
func includeVernac(inc string) (string, error) {
	parts := strings.SplitN(inc, ",", 2)
	if len(parts) == 2 {
		return fmt.Sprintf(`Add LoadPath "%s" as %s.`, parts[0], parts[1]), nil
	}
	if parts[0] == "" {
		return "", fmt.Errorf("--includes: empty entry")
	}
	return fmt.Sprintf(`Add ML Path "%s".`, parts[0]), nil
}

func renderContext(s *driver.Session) string {
	pc := s.ProofContext()
	if pc == nil || len(pc.AllGoals()) == 0 {
		return "No goals."
	}
	return fmt.Sprintf("%d focused goal(s), %d background", len(pc.Fg), len(pc.Bg))
}
