package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/urfave/cli/v3"
)

// DoctorCommand returns the CLI command definition for the 'doctor' subcommand.
func DoctorCommand(version string) *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Diagnose common setup and configuration issues",
		Description: `Checks the binary, the agent's MCP entry for perfdash, the nearest
.perfdash.json, the workspace file it names and otel-cli.

Exits with status 1 when a required check fails.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runDoctor(os.Stdout, version, &realFsUtils{})
		},
	}
}

type checkStatus int

const (
	statusPass checkStatus = iota
	statusWarn
	statusFail
)

var statusIcons = map[checkStatus]string{statusPass: "✓", statusWarn: "⚠", statusFail: "✗"}

type checkResult struct {
	Status     checkStatus
	Message    string
	Suggestion string
}

func pass(format string, args ...any) checkResult {
	return checkResult{Status: statusPass, Message: fmt.Sprintf(format, args...)}
}

func failed(message string, err error) checkResult {
	return checkResult{Status: statusFail, Message: message, Suggestion: fmt.Sprintf("Error: %v", err)}
}

type fsUtils interface {
	Executable() (string, error)
	Stat(name string) (os.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	UserHomeDir() (string, error)
	Getwd() (string, error)
	LookPath(file string) (string, error)
}

type realFsUtils struct{}

func (r *realFsUtils) Executable() (string, error)           { return os.Executable() }
func (r *realFsUtils) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
func (r *realFsUtils) ReadFile(name string) ([]byte, error)  { return os.ReadFile(name) }
func (r *realFsUtils) UserHomeDir() (string, error)          { return os.UserHomeDir() }
func (r *realFsUtils) Getwd() (string, error)                { return os.Getwd() }
func (r *realFsUtils) LookPath(file string) (string, error)  { return exec.LookPath(file) }

// runDoctor writes the report to w and returns an error when a check fails.
func runDoctor(w io.Writer, version string, utils fsUtils) error {
	fmt.Fprintf(w, "🔍 perfdash doctor v%s\n\n", version)

	var warns, fails int
	for _, check := range []func(fsUtils) checkResult{
		checkBinary,
		checkMCPConfig,
		checkProjectConfig,
		checkWorkspace,
		checkOtelCLI,
	} {
		r := check(utils)
		fmt.Fprintf(w, "%s %s\n", statusIcons[r.Status], r.Message)
		if r.Suggestion != "" {
			fmt.Fprintf(w, "  %s\n", r.Suggestion)
		}
		switch r.Status {
		case statusWarn:
			warns++
		case statusFail:
			fails++
		}
	}
	fmt.Fprintln(w)

	switch {
	case fails > 0:
		fmt.Fprintf(w, "❌ Found %d issue(s) that need attention\n", fails)
		if warns > 0 {
			fmt.Fprintf(w, "⚠️  %d warning(s)\n", warns)
		}
		return fmt.Errorf("found %d issues that need attention", fails)
	case warns > 0:
		fmt.Fprintf(w, "✅ All critical checks passed!\n⚠️  %d optional warning(s)\n", warns)
	default:
		fmt.Fprintf(w, "✅ All checks passed!\n")
	}
	fmt.Fprintf(w, "💡 Run 'perfdash serve --verbose' to start the server\n")
	return nil
}

func currentBinary(utils fsUtils) (string, error) {
	executable, err := utils.Executable()
	if err != nil {
		return "", err
	}
	if abs, err := filepath.Abs(executable); err == nil {
		return abs, nil
	}
	return executable, nil
}

func checkBinary(utils fsUtils) checkResult {
	binary, err := currentBinary(utils)
	if err != nil {
		return failed("Could not determine binary location", err)
	}
	info, err := utils.Stat(binary)
	if err != nil {
		return failed("Could not stat binary "+binary, err)
	}
	if info.Mode()&0111 == 0 {
		return checkResult{Status: statusFail, Message: "Binary is not executable: " + binary, Suggestion: "Run: chmod +x " + binary}
	}
	return pass("Binary: %s", binary)
}

// mcpLocation is a settings file an agent reads its MCP servers from.
type mcpLocation struct {
	path  string
	agent string
}

func mcpLocations(utils fsUtils) []mcpLocation {
	var locs []mcpLocation
	if cwd, err := utils.Getwd(); err == nil {
		locs = append(locs,
			mcpLocation{filepath.Join(cwd, ".gemini", "settings.json"), "Gemini CLI"},
			mcpLocation{filepath.Join(cwd, ".mcp.json"), "MCP agent"},
		)
	}
	if home, err := utils.UserHomeDir(); err == nil {
		locs = append(locs, mcpLocation{filepath.Join(home, ".gemini", "settings.json"), "Gemini CLI"})
	}
	return locs
}

const mcpEntryExample = `Add perfdash to your agent's MCP servers:
  {
    "mcpServers": {
      "perfdash": {
        "command": "%s",
        "args": ["serve", "--verbose"]
      }
    }
  }`

func checkMCPConfig(utils fsUtils) checkResult {
	binary, _ := currentBinary(utils)
	var loc *mcpLocation
	for _, l := range mcpLocations(utils) {
		if _, err := utils.Stat(l.path); err == nil {
			loc = &l
			break
		}
	}
	if loc == nil {
		return checkResult{Status: statusFail, Message: "MCP config not found", Suggestion: fmt.Sprintf(mcpEntryExample, binary)}
	}

	data, err := utils.ReadFile(loc.path)
	if err != nil {
		return failed("Could not read MCP config "+loc.path, err)
	}
	var settings struct {
		MCPServers map[string]struct {
			Command string `json:"command"`
		} `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return failed("MCP config is not valid JSON: "+loc.path, err)
	}

	entry, ok := settings.MCPServers["perfdash"]
	switch {
	case !ok:
		return checkResult{
			Status:     statusWarn,
			Message:    fmt.Sprintf("%s config found: %s", loc.agent, loc.path),
			Suggestion: fmt.Sprintf(mcpEntryExample, binary),
		}
	case entry.Command != "" && entry.Command != binary:
		return checkResult{
			Status:     statusWarn,
			Message:    "MCP config found: " + loc.path,
			Suggestion: fmt.Sprintf("Config path (%s) differs from current binary (%s)", entry.Command, binary),
		}
	}
	return pass("%s config found: %s", loc.agent, loc.path)
}

func checkProjectConfig(utils fsUtils) checkResult {
	cfg, path, err := doctorConfig(utils)
	switch {
	case err != nil:
		return failed("Invalid perfdash config: "+path, err)
	case path == "":
		return pass("No .perfdash.json found, using defaults")
	}
	return pass("perfdash config valid: %s (transport %s)", path, cfg.Transport)
}

func checkWorkspace(utils fsUtils) checkResult {
	cfg, _, err := doctorConfig(utils)
	if err != nil || cfg.Workspace == "" {
		return pass("No workspace configured, using the local organization")
	}

	data, err := utils.ReadFile(cfg.Workspace)
	if err != nil {
		return failed("Could not read workspace file "+cfg.Workspace, err)
	}
	ws, err := ParseWorkspace(data)
	if err != nil {
		return failed("Invalid workspace: "+cfg.Workspace, err)
	}
	return pass("Workspace valid: %s (%d projects, %d alert rules)", cfg.Workspace, len(ws.Projects), len(ws.AlertRules))
}

// doctorConfig loads the project config nearest to the working directory
// over the defaults. path is empty when there is none.
func doctorConfig(utils fsUtils) (*Config, string, error) {
	cwd, err := utils.Getwd()
	if err != nil {
		return nil, "", err
	}
	path, err := findProjectConfig(cwd, utils.Stat)
	if err != nil {
		return DefaultConfig(), "", nil
	}

	data, err := utils.ReadFile(path)
	if err != nil {
		return nil, path, err
	}
	var project Config
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, path, err
	}
	project.resolvePaths(filepath.Dir(path))
	cfg := MergeConfigs(DefaultConfig(), &project)
	return cfg, path, cfg.Validate()
}

func checkOtelCLI(utils fsUtils) checkResult {
	if path, err := utils.LookPath("otel-cli"); err == nil {
		return pass("Optional: otel-cli found at %s", path)
	}
	return checkResult{
		Status:     statusWarn,
		Message:    "Optional: otel-cli not found",
		Suggestion: "Install it to send test spans: go install github.com/tobert/otel-cli@latest",
	}
}
