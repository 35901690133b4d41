package main

// check.go - validates a configuration file and reports what each [[server]]
// section resolves to at runtime.

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/migadu/sora-lineproto/config"
	"github.com/migadu/sora-lineproto/logger"
	"github.com/migadu/sora-lineproto/server"
)

// serverSummary is the resolved view of one [[server]] section.
type serverSummary struct {
	Name          string   `json:"name"`
	Protocol      string   `json:"protocol"`
	Addr          string   `json:"addr"`
	HelloName     string   `json:"hello_name"`
	SoftwareName  string   `json:"software_name"`
	Greeting      string   `json:"greeting"`
	Charset       string   `json:"charset"`
	Delimiter     string   `json:"delimiter"`
	MaxLineLength int      `json:"max_line_length"`
	TLSMode       string   `json:"tls_mode"`
	CipherSuites  []string `json:"cipher_suites,omitempty"`
	ProxyTrusted  []string `json:"proxy_trusted,omitempty"`
	ProxyTimeout  string   `json:"proxy_timeout,omitempty"`
}

func handleCheckConfig(args []string) {
	fs := flag.NewFlagSet("check-config", flag.ExitOnError)

	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	helloName := fs.String("hello-name", "", "Host name to assume instead of resolving the local one")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Printf(`Validate a configuration file

Usage:
  sora-lineproto check-config [options]

Options:
  --config string       Path to TOML configuration file (default: config.toml)
  --hello-name string   Host name to assume instead of resolving the local one
  --json                Output in JSON format

The command applies the [logging] section, loads every [[server]] section,
builds its line codec, TLS settings, trusted proxy networks and PROXY header
timeout, and prints the result.
`)
	}

	if err := fs.Parse(args); err != nil {
		logger.Fatalf("Error parsing flags: %v", err)
	}

	cfg := config.NewDefaultConfig()
	if err := config.LoadConfigFromFile(*configPath, &cfg); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	closeLog := initLogging(cfg.Logging)
	defer closeLog()

	name := *helloName
	if name == "" {
		name = server.ResolveHelloName(nil)
	}

	summaries, err := summarizeConfig(cfg, name)
	if err != nil {
		closeLog()
		logger.Fatalf("Invalid configuration: %v", err)
	}
	if err := printSummaries(os.Stdout, summaries, *jsonOutput); err != nil {
		closeLog()
		logger.Fatalf("Failed to print summary: %v", err)
	}
}

// initLogging applies the [logging] section and returns the function that
// closes the log file, if one was opened.
func initLogging(cfg config.LoggingConfig) func() {
	logFile, err := logger.Initialize(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning initializing logger: %v\n", err)
	}
	if logFile == nil {
		return func() {}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := logFile.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Error closing log file %s: %v\n", logFile.Name(), err)
			}
		})
	}
}

// summarizeConfig resolves every server section the way a listener would.
func summarizeConfig(cfg config.Config, helloName string) ([]serverSummary, error) {
	summaries := make([]serverSummary, 0, len(cfg.Servers))
	for _, srv := range cfg.Servers {
		settings := server.NewProtocolSettings(srv, helloName)
		codec, err := settings.Codec()
		if err != nil {
			return nil, fmt.Errorf("server %q: %w", srv.Name, err)
		}

		enc, err := server.LoadEncryption(srv.TLS)
		if err != nil {
			return nil, fmt.Errorf("server %q: %w", srv.Name, err)
		}

		var proxyTimeout time.Duration
		if srv.ProxyProtocol.Enabled {
			if _, err := server.ParseTrustedNetworks(srv.ProxyProtocol.TrustedProxies); err != nil {
				return nil, fmt.Errorf("server %q: %w", srv.Name, err)
			}
			if proxyTimeout, err = srv.ProxyProtocol.GetProxyTimeout(); err != nil {
				return nil, fmt.Errorf("server %q: %w", srv.Name, err)
			}
		}

		s := serverSummary{
			Name:          srv.Name,
			Protocol:      settings.Protocol(),
			Addr:          srv.Addr,
			HelloName:     settings.HelloName(),
			SoftwareName:  settings.SoftwareName(),
			Greeting:      settings.Greeting(),
			Charset:       codec.Charset(),
			Delimiter:     strconv.Quote(codec.Delimiter()),
			MaxLineLength: settings.MaxLineLength(),
			TLSMode:       tlsMode(enc),
		}
		if enc != nil {
			s.CipherSuites = enc.EnabledCipherSuites()
		}
		if srv.ProxyProtocol.Enabled {
			s.ProxyTrusted = srv.ProxyProtocol.TrustedProxies
			s.ProxyTimeout = proxyTimeout.String()
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func tlsMode(enc *server.Encryption) string {
	switch {
	case enc == nil:
		return "none"
	case enc.IsStartTLS():
		return "starttls"
	default:
		return "implicit"
	}
}

func printSummaries(w io.Writer, summaries []serverSummary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	for i, s := range summaries {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "[%s] %s on %s\n", s.Name, s.Protocol, s.Addr)
		fmt.Fprintf(w, "  greeting:        %s\n", s.Greeting)
		fmt.Fprintf(w, "  hello name:      %s\n", s.HelloName)
		fmt.Fprintf(w, "  charset:         %s\n", s.Charset)
		fmt.Fprintf(w, "  delimiter:       %s\n", s.Delimiter)
		fmt.Fprintf(w, "  max line length: %d\n", s.MaxLineLength)
		fmt.Fprintf(w, "  tls:             %s\n", s.TLSMode)
		if len(s.CipherSuites) > 0 {
			fmt.Fprintf(w, "  cipher suites:   %s\n", strings.Join(s.CipherSuites, ", "))
		}
		if len(s.ProxyTrusted) > 0 {
			fmt.Fprintf(w, "  proxy trusted:   %s\n", strings.Join(s.ProxyTrusted, ", "))
		}
		if s.ProxyTimeout != "" {
			fmt.Fprintf(w, "  proxy timeout:   %s\n", s.ProxyTimeout)
		}
	}
	return nil
}
