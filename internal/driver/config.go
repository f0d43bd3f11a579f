package driver

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every knob a Session recognizes.
type Config struct {
	CoqCommand          []string      // argv for the prover subprocess; defaults to sertop --implicit --omit_loc
	ModulePath          string        // path of the source file being driven
	ProjectPath         string        // working directory for the subprocess
	Timeout             time.Duration // per-message wait
	UseHammer           bool          // preload the hammer plugin and tune its time limits
	HammerTimeout       time.Duration // total budget the ATP/Reconstr/Crush splits are taken from
	KernelLevelTerms    bool          // Goals+CoqConstr instead of EGoals+CoqExpr
	ResetOnCancelFail   bool          // a failing cancel triggers full reset+replay
	LogOutgoingMessages string        // optional transcript path
	Verbose             int           // diagnostic logging level
}

// DefaultConfig returns the Config a bare Session should use absent any
// explicit overrides.
func DefaultConfig() Config {
	return Config{
		CoqCommand:    []string{"sertop", "--implicit", "--omit_loc"},
		ProjectPath:   ".",
		Timeout:       30 * time.Second,
		HammerTimeout: 60 * time.Second,
	}
}

// HammerTimeLimits splits HammerTimeout into the ATP (29/60), Reconstr
// (28/60), and Crush (3/60) shares the hammer plugin's limits are tuned
// with.
func (c Config) HammerTimeLimits() (atp, reconstr, crush time.Duration) {
	total := c.HammerTimeout
	atp = total * 29 / 60
	reconstr = total * 28 / 60
	crush = total * 3 / 60
	return
}

// configFile is the shape of an optional YAML config, merged underneath
// whatever CLI flags the caller already populated onto base.
type configFile struct {
	CoqCommand           []string `yaml:"coq_command"`
	ModulePath           string   `yaml:"module_path"`
	ProjectPath          string   `yaml:"project_path"`
	TimeoutSeconds       float64  `yaml:"timeout"`
	UseHammer            bool     `yaml:"use_hammer"`
	HammerTimeoutSeconds float64  `yaml:"hammer_timeout"`
	KernelLevelTerms     bool     `yaml:"kernel_level_terms"`
	ResetOnCancelFail    bool     `yaml:"reset_on_cancel_fail"`
	LogOutgoingMessages  string   `yaml:"log_outgoing_messages"`
	Verbose              int      `yaml:"verbose"`
}

// LoadConfigFile reads an optional YAML config file and layers it under
// base. Most fields in the file apply only where base still holds its zero
// value (ProjectPath also where it holds the default "."), so explicit CLI
// flags win. The boolean switches can only be turned on by the file,
// hammer_timeout applies whenever it is positive, and verbose takes the
// higher of the two levels.
func LoadConfigFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("reading %s: %w", path, err)
	}
	var cf configFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return base, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg := base
	if len(cfg.CoqCommand) == 0 && len(cf.CoqCommand) > 0 {
		cfg.CoqCommand = cf.CoqCommand
	}
	if cfg.ModulePath == "" {
		cfg.ModulePath = cf.ModulePath
	}
	if cfg.ProjectPath == "" || cfg.ProjectPath == "." {
		if cf.ProjectPath != "" {
			cfg.ProjectPath = cf.ProjectPath
		}
	}
	if cfg.Timeout == 0 && cf.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(cf.TimeoutSeconds * float64(time.Second))
	}
	if cf.UseHammer {
		cfg.UseHammer = true
	}
	if cf.HammerTimeoutSeconds > 0 {
		cfg.HammerTimeout = time.Duration(cf.HammerTimeoutSeconds * float64(time.Second))
	}
	if cf.KernelLevelTerms {
		cfg.KernelLevelTerms = true
	}
	if cf.ResetOnCancelFail {
		cfg.ResetOnCancelFail = true
	}
	if cfg.LogOutgoingMessages == "" {
		cfg.LogOutgoingMessages = cf.LogOutgoingMessages
	}
	if cf.Verbose > cfg.Verbose {
		cfg.Verbose = cf.Verbose
	}
	return cfg, nil
}

// includeEntry is one -R/-Q/-I line from a _CoqProject file.
type includeEntry struct {
	Kind    byte // 'R', 'Q', or 'I'
	Dir     string
	Logical string
}

// DiscoverPrelude walks upward from modulePath to projectPath (inclusive),
// parsing every _CoqProject file it finds, and returns the LoadPath/ML Path
// vernaculars to run once at session init, deduplicated by (dir, logical).
func DiscoverPrelude(modulePath, projectPath string) ([]string, error) {
	dir := filepath.Dir(modulePath)
	if dir == "" {
		dir = "."
	}
	projectPath, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, err
	}
	var entries []includeEntry
	seen := map[string]bool{}

	for {
		abs, err := filepath.Abs(dir)
		if err != nil {
			break
		}
		candidate := filepath.Join(abs, "_CoqProject")
		if es, err := parseCoqProject(candidate); err == nil {
			for _, e := range es {
				key := fmt.Sprintf("%s:%s", e.Dir, e.Logical)
				if !seen[key] {
					seen[key] = true
					entries = append(entries, e)
				}
			}
		}
		if abs == projectPath || abs == filepath.Dir(abs) {
			break
		}
		dir = filepath.Dir(abs)
	}

	var out []string
	for _, e := range entries {
		switch e.Kind {
		case 'R':
			out = append(out, fmt.Sprintf(`Add Rec LoadPath "%s" as %s.`, e.Dir, e.Logical))
		case 'Q':
			out = append(out, fmt.Sprintf(`Add LoadPath "%s" as %s.`, e.Dir, e.Logical))
		case 'I':
			out = append(out, fmt.Sprintf(`Add ML Path "%s".`, e.Dir))
		}
	}
	return out, nil
}

func parseCoqProject(path string) ([]includeEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []includeEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		for i := 0; i < len(fields); i++ {
			switch fields[i] {
			case "-R":
				if i+2 < len(fields) {
					out = append(out, includeEntry{Kind: 'R', Dir: fields[i+1], Logical: fields[i+2]})
					i += 2
				}
			case "-Q":
				if i+2 < len(fields) {
					out = append(out, includeEntry{Kind: 'Q', Dir: fields[i+1], Logical: fields[i+2]})
					i += 2
				}
			case "-I":
				if i+1 < len(fields) {
					out = append(out, includeEntry{Kind: 'I', Dir: fields[i+1]})
					i++
				}
			}
		}
	}
	return out, sc.Err()
}
