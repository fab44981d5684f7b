// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package tls

import (
	cryptotls "crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthtribunal/tribunal/pkg/errutil"
)

func TestGenerateCA(t *testing.T) {
	ca, err := GenerateCA("Tribunal")
	require.NoError(t, err)

	assert.True(t, ca.Certificate.IsCA)
	assert.Equal(t, "Tribunal control CA", ca.Certificate.Subject.CommonName)
	assert.NotZero(t, ca.Certificate.KeyUsage&x509.KeyUsageCertSign)
	assert.True(t, ca.Certificate.NotAfter.After(time.Now().AddDate(9, 0, 0)))
}

func TestGenerateServerCert_VerifiesAgainstCA(t *testing.T) {
	ca, err := GenerateCA("Tribunal")
	require.NoError(t, err)
	server, err := GenerateServerCert(ca, "control")
	require.NoError(t, err)

	roots := x509.NewCertPool()
	roots.AddCert(ca.Certificate)
	for _, host := range []string{ServerHost, "127.0.0.1", "::1"} {
		_, err := server.Certificate.Verify(x509.VerifyOptions{
			DNSName:   host,
			Roots:     roots,
			KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		})
		assert.NoError(t, err, host)
	}
	assert.Contains(t, server.Certificate.IPAddresses, net.IPv4(127, 0, 0, 1).To4())

	_, err = GenerateServerCert(nil, "control")
	errutil.AssertErrorCode(t, err, "CERT_GENERATE_FAILED")
}

func TestSaveAndLoadCA(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	ca, err := GenerateCA("Tribunal")
	require.NoError(t, err)
	require.NoError(t, SaveCertificates(dir, ca, nil))

	for _, name := range []string{"root-ca.crt", "root-ca.key"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), name)
	}

	loaded, err := LoadCA(dir)
	require.NoError(t, err)
	assert.True(t, ca.Certificate.Equal(loaded.Certificate))
	assert.True(t, ca.PrivateKey.Equal(loaded.PrivateKey))
}

func TestLoadCA_Errors(t *testing.T) {
	_, err := LoadCA(t.TempDir())
	errutil.AssertErrorCode(t, err, "CERT_LOAD_FAILED")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "root-ca.crt"), []byte("garbage"), 0o600))
	_, err = LoadCA(dir)
	errutil.AssertErrorCode(t, err, "CERT_LOAD_FAILED")
}

func TestEnsure_GeneratesOnceAndReuses(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	require.NoError(t, Ensure(dir))

	first, err := os.ReadFile(filepath.Join(dir, "control.crt"))
	require.NoError(t, err)

	require.NoError(t, Ensure(dir))
	second, err := os.ReadFile(filepath.Join(dir, "control.crt"))
	require.NoError(t, err)
	assert.Equal(t, first, second, "valid certificate must be kept")
}

func TestEnsure_ReissuesMissingServerCert(t *testing.T) {
	dir := t.TempDir()
	ca, err := GenerateCA("Tribunal")
	require.NoError(t, err)
	require.NoError(t, SaveCertificates(dir, ca, nil))

	require.NoError(t, Ensure(dir))

	loaded, err := LoadCA(dir)
	require.NoError(t, err)
	assert.True(t, ca.Certificate.Equal(loaded.Certificate), "existing CA must be kept")
	_, err = ServerConfig(dir)
	assert.NoError(t, err)
}

func TestEnsure_RefusesUnreadableCA(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "root-ca.key"), []byte("orphan"), 0o600))

	err := Ensure(dir)
	errutil.AssertErrorCode(t, err, "CERT_LOAD_FAILED")
}

func TestServerAndClientConfig_Handshake(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Ensure(dir))

	serverCfg, err := ServerConfig(dir)
	require.NoError(t, err)
	clientCfg, err := ClientConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, ServerHost, clientCfg.ServerName)

	listener, err := cryptotls.Listen("tcp", "127.0.0.1:0", serverCfg)
	require.NoError(t, err)
	defer listener.Close()

	accepted := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			accepted <- err
			return
		}
		defer conn.Close()
		accepted <- conn.(*cryptotls.Conn).Handshake()
	}()

	conn, err := cryptotls.Dial("tcp", listener.Addr().String(), clientCfg)
	require.NoError(t, err)
	assert.Equal(t, uint16(cryptotls.VersionTLS13), conn.ConnectionState().Version)
	require.NoError(t, conn.Close())
	require.NoError(t, <-accepted)
}

func TestClientConfig_RejectsForeignCA(t *testing.T) {
	serverDir, clientDir := t.TempDir(), t.TempDir()
	require.NoError(t, Ensure(serverDir))
	require.NoError(t, Ensure(clientDir))

	serverCfg, err := ServerConfig(serverDir)
	require.NoError(t, err)
	clientCfg, err := ClientConfig(clientDir)
	require.NoError(t, err)

	listener, err := cryptotls.Listen("tcp", "127.0.0.1:0", serverCfg)
	require.NoError(t, err)
	defer listener.Close()
	go func() {
		if conn, err := listener.Accept(); err == nil {
			_ = conn.(*cryptotls.Conn).Handshake()
			_ = conn.Close()
		}
	}()

	_, err = cryptotls.Dial("tcp", listener.Addr().String(), clientCfg)
	assert.Error(t, err)
}
