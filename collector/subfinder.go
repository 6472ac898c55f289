package collector

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	exposuregraph "github.com/exposure-graph/exposuregraph"
)

// DefaultSubfinderTimeout bounds one enumeration run.
const DefaultSubfinderTimeout = 120 * time.Second

const subfinderInstallHint = "install it with: go install github.com/projectdiscovery/subfinder/v2/cmd/subfinder@latest"

// Subfinder wraps ProjectDiscovery's subfinder for passive subdomain
// discovery via certificate transparency logs, search engines, and DNS
// datasets.
type Subfinder struct {
	path    string
	timeout time.Duration
	logger  *slog.Logger
}

// NewSubfinder resolves the subfinder binary. Pass an empty path to search
// PATH. A missing binary is a configuration fault, not a scan failure.
func NewSubfinder(path string, timeout time.Duration, logger *slog.Logger) (*Subfinder, error) {
	const op = "collector.NewSubfinder"

	if path == "" {
		path = "subfinder"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, exposuregraph.NewConfigurationError(op,
			fmt.Errorf("subfinder not found in PATH, %s: %w", subfinderInstallHint, err))
	}

	if timeout <= 0 {
		timeout = DefaultSubfinderTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Subfinder{path: resolved, timeout: timeout, logger: logger}, nil
}

// Discover enumerates subdomains of a root domain. Results are lowercased
// and deduplicated, preserving discovery order.
func (s *Subfinder) Discover(ctx context.Context, domain string) ([]string, error) {
	const op = "Subfinder.Discover"

	if domain == "" {
		return nil, exposuregraph.NewValidationError(op, fmt.Errorf("domain is required"))
	}

	s.logger.Info("running subfinder", "domain", domain)

	out, err := RunCommand(ctx, CommandConfig{
		Binary:  s.path,
		Args:    []string{"-d", domain, "-silent", "-oJ"},
		Timeout: s.timeout,
	})
	if err != nil {
		return nil, err
	}
	if out.ExitCode != 0 {
		msg := strings.TrimSpace(string(out.Stderr))
		if msg == "" {
			msg = "unknown error"
		}
		return nil, exposuregraph.NewExecutionError(op,
			fmt.Errorf("subfinder exited with code %d: %s", out.ExitCode, msg))
	}

	subdomains := parseSubfinderOutput(out.Stdout, s.logger)
	s.logger.Info("subfinder finished", "domain", domain, "subdomains", len(subdomains))
	return subdomains, nil
}

// subfinderLine is one JSONL record from subfinder -oJ.
type subfinderLine struct {
	Host   string `json:"host"`
	Source string `json:"source"`
}

// parseSubfinderOutput decodes JSONL output into a deduplicated, lowercased
// list of hosts. Malformed lines are logged and skipped.
func parseSubfinderOutput(output []byte, logger *slog.Logger) []string {
	seen := make(map[string]bool)
	var subdomains []string

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec subfinderLine
		if err := json.Unmarshal(line, &rec); err != nil {
			logger.Warn("skipping malformed subfinder line", "error", err)
			continue
		}

		host := strings.ToLower(strings.TrimSpace(rec.Host))
		if host == "" || seen[host] {
			continue
		}
		seen[host] = true
		subdomains = append(subdomains, host)
	}

	return subdomains
}
