package server

import (
	"crypto/tls"
	"fmt"

	"github.com/migadu/sora-lineproto/config"
	"github.com/migadu/sora-lineproto/logger"
	"golang.org/x/crypto/acme/autocert"
)

// LoadEncryption builds the Encryption for a server's TLS section. It
// returns nil when TLS is disabled.
func LoadEncryption(cfg config.TLSConfig) (*Encryption, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	tlsConfig, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.StartTLS {
		return CreateStartTLS(tlsConfig, cfg.CipherSuites...)
	}
	return CreateTLS(tlsConfig, cfg.CipherSuites...)
}

func buildTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	minVersion, err := parseTLSVersion(cfg.MinVersion)
	if err != nil {
		return nil, err
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		return &tls.Config{
			Certificates:  []tls.Certificate{cert},
			MinVersion:    minVersion,
			Renegotiation: tls.RenegotiateNever,
		}, nil
	}

	if le := cfg.LetsEncrypt; le != nil && len(le.Domains) > 0 {
		mgr := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Email:      le.Email,
			HostPolicy: autocert.HostWhitelist(le.Domains...),
		}
		if le.CacheDir != "" {
			mgr.Cache = autocert.DirCache(le.CacheDir)
		}
		logger.Info("TLS: Using ACME certificates", "domains", le.Domains, "cache_dir", le.CacheDir)

		tlsConfig := mgr.TLSConfig()
		tlsConfig.MinVersion = minVersion
		return tlsConfig, nil
	}

	return nil, config.ErrTLSMaterialMissing
}

func parseTLSVersion(v string) (uint16, error) {
	switch v {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS min_version %q", v)
	}
}
