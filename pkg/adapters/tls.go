// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-shiftsync.
//
// go-shiftsync is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package adapters

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrInvalidCertificate is returned when a certificate is invalid.
	ErrInvalidCertificate = errors.New("invalid certificate")

	// ErrInvalidCAPool is returned when the CA pool is invalid.
	ErrInvalidCAPool = errors.New("invalid CA pool")
)

// TLSMode defines the TLS configuration mode.
type TLSMode int

const (
	// TLSModeDisabled serves plain HTTP.
	TLSModeDisabled TLSMode = iota

	// TLSModeServer enables TLS with a server certificate only.
	TLSModeServer

	// TLSModeMutual additionally requires a client certificate signed by ClientCA.
	TLSModeMutual
)

func (m TLSMode) String() string {
	switch m {
	case TLSModeServer:
		return "server"
	case TLSModeMutual:
		return "mutual"
	default:
		return "disabled"
	}
}

// TLSConfig holds the listener TLS settings.
type TLSConfig struct {
	Mode TLSMode

	// CertFile and KeyFile are PEM files; CertPEM and KeyPEM take precedence.
	CertFile string
	KeyFile  string
	CertPEM  []byte
	KeyPEM   []byte

	// ClientCAFile or ClientCAPEM verify client certificates in mutual mode.
	ClientCAFile string
	ClientCAPEM  []byte

	// MinVersion defaults to TLS 1.2.
	MinVersion uint16
}

// NewTLSConfig returns a TLS configuration for the given files. An empty
// certFile disables TLS; a non-empty caFile enables mutual TLS.
func NewTLSConfig(certFile, keyFile, caFile string) *TLSConfig {
	c := &TLSConfig{MinVersion: tls.VersionTLS12}
	if certFile == "" && keyFile == "" {
		return c
	}
	c.Mode = TLSModeServer
	c.CertFile = certFile
	c.KeyFile = keyFile
	if caFile != "" {
		c.Mode = TLSModeMutual
		c.ClientCAFile = caFile
	}
	return c
}

// Enabled reports whether the listener should speak TLS.
func (c *TLSConfig) Enabled() bool {
	return c != nil && c.Mode != TLSModeDisabled
}

// Build creates a *tls.Config. It returns nil, nil when TLS is disabled.
func (c *TLSConfig) Build() (*tls.Config, error) {
	if !c.Enabled() {
		return nil, nil
	}

	minVersion := c.MinVersion
	if minVersion == 0 {
		minVersion = tls.VersionTLS12
	}
	config := &tls.Config{MinVersion: minVersion}

	var (
		cert tls.Certificate
		err  error
	)
	switch {
	case len(c.CertPEM) > 0 && len(c.KeyPEM) > 0:
		cert, err = tls.X509KeyPair(c.CertPEM, c.KeyPEM)
	case c.CertFile != "" && c.KeyFile != "":
		cert, err = tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	default:
		return nil, fmt.Errorf("%w: certificate and key are both required", ErrInvalidCertificate)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	config.Certificates = []tls.Certificate{cert}

	if c.Mode == TLSModeMutual {
		caPEM := c.ClientCAPEM
		if len(caPEM) == 0 {
			if c.ClientCAFile == "" {
				return nil, ErrInvalidCAPool
			}
			caPEM, err = os.ReadFile(c.ClientCAFile)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidCAPool, err)
			}
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, ErrInvalidCAPool
		}
		config.ClientCAs = pool
		config.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return config, nil
}
