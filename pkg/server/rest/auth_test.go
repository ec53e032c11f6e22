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

package rest

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-shiftsync/pkg/adapters"
	"github.com/jeremyhahn/go-shiftsync/pkg/audit"
	"github.com/jeremyhahn/go-shiftsync/pkg/clients"
	"github.com/jeremyhahn/go-shiftsync/pkg/state"
)

type authRecorder struct {
	audit.NoOpAuditLogger
	mu        sync.Mutex
	failures  []string
	successes []string
}

func (r *authRecorder) LogAuthFailure(ctx context.Context, principal, ipAddress, requestID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, reason)
	return nil
}

func (r *authRecorder) LogAuthSuccess(ctx context.Context, principal, ipAddress, requestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, principal)
	return nil
}

func TestAuthenticationMiddleware(t *testing.T) {
	recorder := &authRecorder{}
	router := gin.New()
	router.Use(AuthenticationMiddleware(
		adapters.NewTokenAuthenticator(map[string]string{"scheduler": "w"}, map[string]string{"kiosk": "r"}),
		adapters.NewNoOpLogger(), recorder))
	handler := func(c *gin.Context) {
		c.String(http.StatusOK, GetPrincipal(c).ID)
	}
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/v1/staff", handler)
	router.POST("/api/v1/staff", handler)

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		wantCode int
		wantBody string
	}{
		{"health is open", http.MethodGet, "/health", "", http.StatusOK, ""},
		{"missing token", http.MethodGet, "/api/v1/staff", "", http.StatusUnauthorized, ""},
		{"bad token", http.MethodGet, "/api/v1/staff", "x", http.StatusUnauthorized, ""},
		{"reader reads", http.MethodGet, "/api/v1/staff", "r", http.StatusOK, "kiosk"},
		{"reader cannot write", http.MethodPost, "/api/v1/staff", "r", http.StatusForbidden, ""},
		{"writer writes", http.MethodPost, "/api/v1/staff", "w", http.StatusOK, "scheduler"},
		{"query token", http.MethodGet, "/api/v1/staff?access_token=r", "", http.StatusOK, "kiosk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}

	assert.Len(t, recorder.failures, 3)
	assert.Equal(t, []string{"kiosk", "scheduler", "kiosk"}, recorder.successes)
}

func TestResourceOf(t *testing.T) {
	assert.Equal(t, "staff", resourceOf("/api/v1/staff/abc"))
	assert.Equal(t, "clients", resourceOf("/api/v1/clients/stats"))
	assert.Equal(t, "ws", resourceOf("/api/v1/ws"))
	assert.Equal(t, "", resourceOf("/"))
}

func TestServerWithAuthenticator(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) {
		c.Authenticator = adapters.NewTokenAuthenticator(map[string]string{"ops": "secret"}, nil)
	})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/v1/staff", nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/version", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	env.server.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func selfSignedPEM(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	require.NoError(t, err)
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "127.0.0.1"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
}

func TestServeTLS(t *testing.T) {
	certPEM, keyPEM := selfSignedPEM(t)
	env := newTestEnv(t, func(c *ServerConfig) {
		c.TLSConfig = &adapters.TLSConfig{Mode: adapters.TLSModeServer, CertPEM: certPEM, KeyPEM: keyPEM}
		c.SecurityHeadersConfig.EnableHSTS = true
	})
	require.True(t, env.server.TLSEnabled())

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	errCh := make(chan error, 1)
	go func() { errCh <- env.server.Serve(l) }()

	pool := x509.NewCertPool()
	require.True(t, pool.AppendCertsFromPEM(certPEM))
	client := &http.Client{
		Timeout:   2 * time.Second,
		Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}},
	}
	resp, err := client.Get("https://" + l.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Strict-Transport-Security"), "max-age="))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, env.server.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}

func TestNewServerRejectsBadTLS(t *testing.T) {
	registry := clients.NewManager(clients.Config{})
	t.Cleanup(registry.Close)
	_, err := NewServer(HandlerConfig{
		Store:    state.NewManager(state.Config{Registry: registry}),
		Registry: registry,
	}, &ServerConfig{
		Mode:      gin.TestMode,
		Logger:    adapters.NewNoOpLogger(),
		TLSConfig: adapters.NewTLSConfig("/nonexistent/cert.pem", "/nonexistent/key.pem", ""),
	})
	assert.ErrorIs(t, err, adapters.ErrInvalidCertificate)
}
