package server

import (
	"crypto/tls"
	"fmt"
	"slices"
)

// Encryption describes how a listener secures connections: implicit TLS from
// the first byte, or an in-band STARTTLS upgrade. It is immutable after
// creation and safe to share between sessions.
type Encryption struct {
	config       *tls.Config
	startTLS     bool
	cipherSuites []string
	suiteIDs     []uint16
}

// CreateTLS describes implicit TLS. An empty cipherSuites list leaves the
// suites unrestricted.
func CreateTLS(cfg *tls.Config, cipherSuites ...string) (*Encryption, error) {
	return newEncryption(cfg, false, cipherSuites)
}

// CreateStartTLS describes a plaintext listener that offers STARTTLS.
func CreateStartTLS(cfg *tls.Config, cipherSuites ...string) (*Encryption, error) {
	return newEncryption(cfg, true, cipherSuites)
}

func newEncryption(cfg *tls.Config, startTLS bool, cipherSuites []string) (*Encryption, error) {
	if cfg == nil {
		return nil, ErrNilTLSConfig
	}
	e := &Encryption{
		config:   cfg.Clone(),
		startTLS: startTLS,
	}
	if len(cipherSuites) > 0 {
		ids, err := cipherSuiteIDs(cipherSuites)
		if err != nil {
			return nil, err
		}
		e.cipherSuites = slices.Clone(cipherSuites)
		e.suiteIDs = ids
	}
	return e, nil
}

func cipherSuiteIDs(names []string) ([]uint16, error) {
	known := make(map[string]uint16)
	for _, s := range tls.CipherSuites() {
		known[s.Name] = s.ID
	}
	for _, s := range tls.InsecureCipherSuites() {
		known[s.Name] = s.ID
	}

	ids := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCipherSuite, name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// IsStartTLS reports whether TLS is negotiated in-band rather than implicitly.
func (e *Encryption) IsStartTLS() bool { return e.startTLS }

// EnabledCipherSuites returns the allow-list, or nil when unrestricted.
func (e *Encryption) EnabledCipherSuites() []string {
	return slices.Clone(e.cipherSuites)
}

// ServerConfig returns a fresh tls.Config for one handshake, restricted to
// the allow-list when one is set. The restriction applies to TLS 1.2 and
// earlier; TLS 1.3 suites are not configurable.
func (e *Encryption) ServerConfig() *tls.Config {
	cfg := e.config.Clone()
	if len(e.suiteIDs) > 0 {
		cfg.CipherSuites = slices.Clone(e.suiteIDs)
	}
	return cfg
}
