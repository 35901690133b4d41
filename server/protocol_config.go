package server

import (
	"os"

	"github.com/migadu/sora-lineproto/config"
	"github.com/migadu/sora-lineproto/logger"
)

// FallbackHelloName is used when the local host name cannot be resolved.
const FallbackHelloName = "localhost"

// ProtocolConfig is the read-only configuration surface a Session exposes to
// command handlers.
type ProtocolConfig interface {
	Greeting() string
	SoftwareName() string
	HelloName() string
}

// ResolveHelloName resolves the local host name once. Call it at startup and
// pass the result to NewProtocolSettings; lookup defaults to os.Hostname.
func ResolveHelloName(lookup func() (string, error)) string {
	if lookup == nil {
		lookup = os.Hostname
	}
	name, err := lookup()
	if err != nil || name == "" {
		logger.Warn("Could not resolve local host name, using fallback", "fallback", FallbackHelloName, "error", err)
		return FallbackHelloName
	}
	return name
}

// ProtocolSettings is the ProtocolConfig built from one [[server]] section.
type ProtocolSettings struct {
	protocol      string
	greeting      string
	softwareName  string
	helloName     string
	charset       string
	delimiter     string
	maxLineLength int
}

// NewProtocolSettings derives settings from cfg. defaultHelloName is the
// value returned by ResolveHelloName and is used unless cfg names one.
func NewProtocolSettings(cfg config.ProtocolServerConfig, defaultHelloName string) *ProtocolSettings {
	helloName := cfg.HelloName
	if helloName == "" {
		helloName = defaultHelloName
	}
	if helloName == "" {
		helloName = FallbackHelloName
	}
	return &ProtocolSettings{
		protocol:      cfg.Protocol,
		greeting:      cfg.GetGreeting(helloName),
		softwareName:  cfg.GetSoftwareName(),
		helloName:     helloName,
		charset:       cfg.GetCharset(),
		delimiter:     cfg.GetLineDelimiter(),
		maxLineLength: cfg.GetMaxLineLength(),
	}
}

func (p *ProtocolSettings) Greeting() string     { return p.greeting }
func (p *ProtocolSettings) SoftwareName() string { return p.softwareName }
func (p *ProtocolSettings) HelloName() string    { return p.helloName }
func (p *ProtocolSettings) Protocol() string     { return p.protocol }
func (p *ProtocolSettings) MaxLineLength() int   { return p.maxLineLength }

// Codec builds the line codec for the configured charset and delimiter.
func (p *ProtocolSettings) Codec() (*LineCodec, error) {
	return NewLineCodec(p.charset, p.delimiter)
}
