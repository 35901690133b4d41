package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied by the getters when a setting is left empty.
const (
	DefaultCharset       = "US-ASCII"
	DefaultLineDelimiter = "\r\n"
	DefaultMaxLineLength = 8192
	DefaultSoftwareName  = "sora"
	DefaultProxyTimeout  = "5s"
)

var (
	ErrNoServers          = errors.New("no protocol servers configured")
	ErrMissingServerName  = errors.New("server name is required")
	ErrMissingProtocol    = errors.New("server protocol is required")
	ErrTLSMaterialMissing = errors.New("tls enabled but no certificate source configured")
)

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Output string `toml:"output"` // Log output: "stderr", "stdout", "syslog", or file path
	Format string `toml:"format"` // Log format: "json" or "console"
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", "error"
}

// TLSLetsEncryptConfig configures ACME-issued certificates.
type TLSLetsEncryptConfig struct {
	Email    string   `toml:"email"`     // Email for Let's Encrypt notifications
	Domains  []string `toml:"domains"`   // Domains allowed by the host policy
	CacheDir string   `toml:"cache_dir"` // Directory used as the autocert cache
}

// TLSConfig holds TLS settings for one protocol server.
type TLSConfig struct {
	Enabled      bool                  `toml:"enabled"`
	StartTLS     bool                  `toml:"starttls"`      // Offer in-band upgrade instead of implicit TLS
	CertFile     string                `toml:"cert_file"`     // PEM certificate chain
	KeyFile      string                `toml:"key_file"`      // PEM private key
	CipherSuites []string              `toml:"cipher_suites"` // Allow-list of suite names; empty means unrestricted
	MinVersion   string                `toml:"min_version"`   // "1.2" or "1.3" (default "1.2")
	LetsEncrypt  *TLSLetsEncryptConfig `toml:"letsencrypt"`
}

// ProxyProtocolConfig controls PROXY protocol handling for a server.
type ProxyProtocolConfig struct {
	Enabled        bool     `toml:"enabled"`
	TrustedProxies []string `toml:"trusted_proxies"` // CIDR blocks allowed to send PROXY headers
	Timeout        string   `toml:"timeout"`         // Header read timeout (default: 5s)
}

// ProtocolServerConfig describes one line-oriented protocol endpoint.
type ProtocolServerConfig struct {
	Name          string              `toml:"name"`
	Protocol      string              `toml:"protocol"` // "smtp", "lmtp", "imap", "pop3", "managesieve"
	Addr          string              `toml:"addr"`
	Greeting      string              `toml:"greeting"`
	SoftwareName  string              `toml:"software_name"`
	HelloName     string              `toml:"hello_name"` // Empty means the resolved local host name
	Charset       string              `toml:"charset"`
	LineDelimiter string              `toml:"line_delimiter"` // "crlf", "lf" or a literal delimiter
	MaxLineLength int                 `toml:"max_line_length"`
	TLS           TLSConfig           `toml:"tls"`
	ProxyProtocol ProxyProtocolConfig `toml:"proxy_protocol"`
}

// Config is the root of the TOML configuration file.
type Config struct {
	Logging LoggingConfig          `toml:"logging"`
	Servers []ProtocolServerConfig `toml:"server"`
}

// NewDefaultConfig returns a configuration with a single SMTP endpoint.
func NewDefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Output: "stderr",
			Format: "console",
			Level:  "info",
		},
		Servers: []ProtocolServerConfig{
			{
				Name:     "smtp",
				Protocol: "smtp",
				Addr:     ":25",
			},
		},
	}
}

// GetCharset returns the configured charset or US-ASCII.
func (s *ProtocolServerConfig) GetCharset() string {
	if s.Charset == "" {
		return DefaultCharset
	}
	return s.Charset
}

// GetLineDelimiter translates the configured delimiter into the bytes used on the wire.
func (s *ProtocolServerConfig) GetLineDelimiter() string {
	switch strings.ToLower(s.LineDelimiter) {
	case "", "crlf":
		return DefaultLineDelimiter
	case "lf":
		return "\n"
	default:
		return s.LineDelimiter
	}
}

// GetMaxLineLength returns the maximum accepted inbound line length in bytes.
func (s *ProtocolServerConfig) GetMaxLineLength() int {
	if s.MaxLineLength <= 0 {
		return DefaultMaxLineLength
	}
	return s.MaxLineLength
}

// GetSoftwareName returns the advertised software name.
func (s *ProtocolServerConfig) GetSoftwareName() string {
	if s.SoftwareName == "" {
		return DefaultSoftwareName
	}
	return s.SoftwareName
}

// GetGreeting returns the greeting text, derived from the hello and software
// names when none is configured.
func (s *ProtocolServerConfig) GetGreeting(helloName string) string {
	if s.Greeting != "" {
		return s.Greeting
	}
	return fmt.Sprintf("%s %s service ready", helloName, s.GetSoftwareName())
}

// GetProxyTimeout returns how long a listener waits for the PROXY header.
func (p *ProxyProtocolConfig) GetProxyTimeout() (time.Duration, error) {
	timeout := p.Timeout
	if timeout == "" {
		timeout = DefaultProxyTimeout
	}
	d, err := time.ParseDuration(timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid proxy_protocol timeout %q: %w", timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid proxy_protocol timeout %q: must be positive", timeout)
	}
	return d, nil
}

// HasCertificateSource reports whether TLS material can be obtained.
func (t *TLSConfig) HasCertificateSource() bool {
	if t.CertFile != "" && t.KeyFile != "" {
		return true
	}
	return t.LetsEncrypt != nil && len(t.LetsEncrypt.Domains) > 0
}

// Validate checks a single server section.
func (s *ProtocolServerConfig) Validate() error {
	if s.Name == "" {
		return ErrMissingServerName
	}
	if s.Protocol == "" {
		return fmt.Errorf("server %q: %w", s.Name, ErrMissingProtocol)
	}
	if s.TLS.Enabled && !s.TLS.HasCertificateSource() {
		return fmt.Errorf("server %q: %w", s.Name, ErrTLSMaterialMissing)
	}
	if s.GetLineDelimiter() == "" {
		return fmt.Errorf("server %q: empty line delimiter", s.Name)
	}
	if s.ProxyProtocol.Enabled {
		if _, err := s.ProxyProtocol.GetProxyTimeout(); err != nil {
			return fmt.Errorf("server %q: %w", s.Name, err)
		}
	}
	return nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if len(c.Servers) == 0 {
		return ErrNoServers
	}
	seen := make(map[string]struct{}, len(c.Servers))
	for i := range c.Servers {
		if err := c.Servers[i].Validate(); err != nil {
			return err
		}
		if _, dup := seen[c.Servers[i].Name]; dup {
			return fmt.Errorf("duplicate server name %q", c.Servers[i].Name)
		}
		seen[c.Servers[i].Name] = struct{}{}
	}
	return nil
}

// Server returns the server section with the given name.
func (c *Config) Server(name string) (ProtocolServerConfig, bool) {
	for _, s := range c.Servers {
		if s.Name == name {
			return s, true
		}
	}
	return ProtocolServerConfig{}, false
}

// LoadConfigFromFile loads configuration from a TOML file and trims whitespace
// from all string fields. Unknown keys are logged and ignored.
func LoadConfigFromFile(configPath string, cfg *Config) error {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}
	return LoadConfig(string(content), configPath, cfg)
}

// LoadConfig decodes TOML content into cfg. The source name only appears in warnings.
func LoadConfig(content, source string, cfg *Config) error {
	metadata, err := toml.Decode(content, cfg)
	if err != nil {
		return enhanceConfigError(err)
	}

	if undecoded := metadata.Undecoded(); len(undecoded) > 0 {
		log.Printf("WARNING: Configuration '%s' contains unknown keys that will be ignored:", source)
		for _, key := range undecoded {
			log.Printf("WARNING:   - %s", key)
		}
	}

	trimStringFields(reflect.ValueOf(cfg).Elem())

	// Literal delimiters are whitespace and must survive trimming.
	restoreDelimiters(content, cfg)

	return cfg.Validate()
}

// restoreDelimiters re-decodes line_delimiter values, which trimStringFields
// would otherwise reduce to the empty string.
func restoreDelimiters(content string, cfg *Config) {
	var raw struct {
		Servers []struct {
			LineDelimiter string `toml:"line_delimiter"`
		} `toml:"server"`
	}
	if _, err := toml.Decode(content, &raw); err != nil {
		return
	}
	for i := range raw.Servers {
		if i < len(cfg.Servers) && raw.Servers[i].LineDelimiter != "" {
			cfg.Servers[i].LineDelimiter = raw.Servers[i].LineDelimiter
		}
	}
}

// enhanceConfigError provides more helpful error messages for common TOML parsing issues
func enhanceConfigError(err error) error {
	errMsg := err.Error()

	if strings.Contains(errMsg, "has already been defined") {
		return fmt.Errorf("%w\n\nHINT: You have a duplicate configuration key in your TOML file.\n"+
			"Check for the same key appearing twice in one [[server]] section", err)
	}

	if strings.Contains(errMsg, "expected value but found \"f\"") ||
		strings.Contains(errMsg, "expected value but found \"t\"") {
		return fmt.Errorf("%w\n\nHINT: In TOML, boolean values must be exactly 'true' or 'false' (lowercase, unquoted)", err)
	}

	return err
}

// trimStringFields recursively trims whitespace from all string fields in a struct
func trimStringFields(v reflect.Value) {
	if !v.IsValid() || !v.CanSet() {
		return
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(strings.TrimSpace(v.String()))

	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			trimStringFields(v.Index(i))
		}

	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if field := v.Field(i); field.CanSet() {
				trimStringFields(field)
			}
		}

	case reflect.Ptr:
		if !v.IsNil() {
			trimStringFields(v.Elem())
		}
	}
}
