package collector

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"strings"
	"time"

	exposuregraph "github.com/exposure-graph/exposuregraph"
)

// DefaultHttpxTimeout bounds one probing run. Probing is slower than
// enumeration, so it gets a longer default.
const DefaultHttpxTimeout = 180 * time.Second

const httpxInstallHint = "install it with: go install github.com/projectdiscovery/httpx/cmd/httpx@latest"

// Service is one live web service found by httpx.
type Service struct {
	// URL is the full service URL, e.g. "https://api.example.com".
	URL string

	// Host is the subdomain that was probed, lowercased.
	Host string

	// StatusCode is the HTTP response status.
	StatusCode int

	// Title is the HTML page title, if any.
	Title string

	// WebServer is the Server header value, e.g. "nginx/1.18.0".
	WebServer string

	// Technologies are the fingerprinted technologies, e.g. "PHP/5.6".
	Technologies []string
}

// Httpx wraps ProjectDiscovery's httpx for HTTP probing and technology
// fingerprinting. The Go binary, not the Python library of the same name.
type Httpx struct {
	path    string
	timeout time.Duration
	logger  *slog.Logger
}

// NewHttpx resolves the httpx binary. Pass an empty path to search PATH.
func NewHttpx(path string, timeout time.Duration, logger *slog.Logger) (*Httpx, error) {
	const op = "collector.NewHttpx"

	if path == "" {
		path = "httpx"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, exposuregraph.NewConfigurationError(op,
			fmt.Errorf("httpx not found in PATH, %s: %w", httpxInstallHint, err))
	}

	if timeout <= 0 {
		timeout = DefaultHttpxTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Httpx{path: resolved, timeout: timeout, logger: logger}, nil
}

// Probe checks which hosts answer HTTP or HTTPS and fingerprints them.
// Hosts are piped to stdin, one per line. httpx may exit non-zero when some
// probes fail; as long as it produced output, the partial results stand.
func (h *Httpx) Probe(ctx context.Context, hosts []string) ([]Service, error) {
	const op = "Httpx.Probe"

	if len(hosts) == 0 {
		return nil, nil
	}

	h.logger.Info("running httpx", "hosts", len(hosts))

	out, err := RunCommand(ctx, CommandConfig{
		Binary:  h.path,
		Args:    []string{"-json", "-silent", "-sc", "-title", "-server", "-td"},
		Stdin:   []byte(strings.Join(hosts, "\n") + "\n"),
		Timeout: h.timeout,
	})
	if err != nil {
		return nil, err
	}
	if out.ExitCode != 0 && len(out.Stdout) == 0 {
		msg := strings.TrimSpace(string(out.Stderr))
		if msg == "" {
			msg = "unknown error"
		}
		return nil, exposuregraph.NewExecutionError(op,
			fmt.Errorf("httpx exited with code %d: %s", out.ExitCode, msg))
	}

	services := parseHttpxOutput(out.Stdout, h.logger)
	h.logger.Info("httpx finished", "hosts", len(hosts), "live_services", len(services))
	return services, nil
}

// httpxLine is one JSONL record from httpx -json. Technology detection has
// used both "tech" and "technologies" across httpx versions.
type httpxLine struct {
	URL          string   `json:"url"`
	Input        string   `json:"input"`
	StatusCode   int      `json:"status_code"`
	Title        string   `json:"title"`
	WebServer    string   `json:"webserver"`
	Tech         []string `json:"tech"`
	Technologies []string `json:"technologies"`
}

// parseHttpxOutput decodes JSONL output into services. Records without a
// URL or status code and malformed lines are skipped.
func parseHttpxOutput(output []byte, logger *slog.Logger) []Service {
	var services []Service

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec httpxLine
		if err := json.Unmarshal(line, &rec); err != nil {
			logger.Warn("skipping malformed httpx line", "error", err)
			continue
		}
		if rec.URL == "" || rec.StatusCode == 0 {
			logger.Debug("skipping incomplete httpx record", "url", rec.URL)
			continue
		}

		tech := rec.Tech
		if len(tech) == 0 {
			tech = rec.Technologies
		}

		services = append(services, Service{
			URL:          rec.URL,
			Host:         hostOf(rec),
			StatusCode:   rec.StatusCode,
			Title:        strings.TrimSpace(rec.Title),
			WebServer:    rec.WebServer,
			Technologies: tech,
		})
	}

	return services
}

// hostOf prefers the probed input; falls back to the URL's hostname.
func hostOf(rec httpxLine) string {
	if rec.Input != "" {
		return strings.ToLower(rec.Input)
	}
	if u, err := url.Parse(rec.URL); err == nil && u.Hostname() != "" {
		return strings.ToLower(u.Hostname())
	}
	return ""
}
