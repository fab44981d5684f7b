// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

// Package tls keeps the private CA and server certificate that secure the
// control server, and builds the matching server and client tls.Configs.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
)

// File names inside a certs directory.
const (
	caName     = "root-ca"
	serverName = "control"
)

// ServerHost is the name clients verify against the server certificate.
const ServerHost = "localhost"

// RenewBefore is how close to expiry Ensure reissues the server certificate.
const RenewBefore = 30 * 24 * time.Hour

// CA holds a certificate authority certificate and private key.
type CA struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// ServerCert holds a server certificate and private key.
type ServerCert struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
	Name        string
}

// GenerateCA creates a self-signed root valid for ten years.
func GenerateCA(org string) (*CA, error) {
	key, serial, err := newKeyAndSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{org},
			CommonName:   org + " control CA",
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.AddDate(10, 0, 0),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		MaxPathLenZero:        true,
	}

	cert, err := sign(template, template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// GenerateServerCert issues a one-year server certificate for the loopback
// names.
func GenerateServerCert(ca *CA, name string) (*ServerCert, error) {
	if ca == nil {
		return nil, oops.Code("CERT_GENERATE_FAILED").Errorf("CA is required")
	}
	key, serial, err := newKeyAndSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: ca.Certificate.Subject.Organization,
			CommonName:   name,
		},
		NotBefore:   now.Add(-time.Minute),
		NotAfter:    now.AddDate(1, 0, 0),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:    []string{ServerHost},
		IPAddresses: []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}

	cert, err := sign(template, ca.Certificate, &key.PublicKey, ca.PrivateKey)
	if err != nil {
		return nil, err
	}
	return &ServerCert{Certificate: cert, PrivateKey: key, Name: name}, nil
}

func newKeyAndSerial() (*ecdsa.PrivateKey, *big.Int, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, oops.Code("CERT_GENERATE_FAILED").With("operation", "generate key").Wrap(err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, oops.Code("CERT_GENERATE_FAILED").With("operation", "generate serial").Wrap(err)
	}
	return key, serial, nil
}

func sign(template, parent *x509.Certificate, pub *ecdsa.PublicKey, signer *ecdsa.PrivateKey) (*x509.Certificate, error) {
	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, signer)
	if err != nil {
		return nil, oops.Code("CERT_GENERATE_FAILED").With("subject", template.Subject.CommonName).Wrap(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, oops.Code("CERT_GENERATE_FAILED").With("subject", template.Subject.CommonName).Wrap(err)
	}
	return cert, nil
}

// SaveCertificates writes root-ca.{crt,key} and, when server is non-nil,
// {name}.{crt,key} into dir with owner-only permissions.
func SaveCertificates(dir string, ca *CA, server *ServerCert) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return oops.Code("CERT_SAVE_FAILED").With("dir", dir).Wrap(err)
	}
	if err := savePair(dir, caName, ca.Certificate, ca.PrivateKey); err != nil {
		return err
	}
	if server != nil {
		return savePair(dir, server.Name, server.Certificate, server.PrivateKey)
	}
	return nil
}

func savePair(dir, name string, cert *x509.Certificate, key *ecdsa.PrivateKey) error {
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return oops.Code("CERT_SAVE_FAILED").With("name", name).Wrap(err)
	}
	files := []struct {
		path  string
		block *pem.Block
	}{
		{filepath.Join(dir, name+".crt"), &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}},
		{filepath.Join(dir, name+".key"), &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Clean(f.path), pem.EncodeToMemory(f.block), 0o600); err != nil {
			return oops.Code("CERT_SAVE_FAILED").With("path", f.path).Wrap(err)
		}
	}
	return nil
}

// LoadCA reads root-ca.{crt,key} from dir.
func LoadCA(dir string) (*CA, error) {
	cert, key, err := loadPair(dir, caName)
	if err != nil {
		return nil, err
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

func loadPair(dir, name string) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	certPath := filepath.Clean(filepath.Join(dir, name+".crt"))
	certBlock, err := readPEM(certPath, "CERTIFICATE")
	if err != nil {
		return nil, nil, err
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, nil, oops.Code("CERT_LOAD_FAILED").With("path", certPath).Wrap(err)
	}

	keyPath := filepath.Clean(filepath.Join(dir, name+".key"))
	keyBlock, err := readPEM(keyPath, "EC PRIVATE KEY")
	if err != nil {
		return nil, nil, err
	}
	key, err := x509.ParseECPrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, nil, oops.Code("CERT_LOAD_FAILED").With("path", keyPath).Wrap(err)
	}
	return cert, key, nil
}

func readPEM(path, blockType string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Code("CERT_LOAD_FAILED").With("path", path).Wrap(err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != blockType {
		return nil, oops.Code("CERT_LOAD_FAILED").With("path", path).Errorf("no %s PEM block", blockType)
	}
	return block, nil
}

// Ensure makes dir hold a usable CA and control server certificate. A
// missing CA is generated together with a fresh server certificate; an
// existing CA is kept and the server certificate is reissued when it is
// missing or within RenewBefore of expiry. A CA that exists but cannot be
// read is an error rather than being silently replaced.
func Ensure(dir string) error {
	ca, err := LoadCA(dir)
	switch {
	case err == nil:
	case !exists(filepath.Join(dir, caName+".crt")) && !exists(filepath.Join(dir, caName+".key")):
		if ca, err = GenerateCA("Tribunal"); err != nil {
			return err
		}
		server, err := GenerateServerCert(ca, serverName)
		if err != nil {
			return err
		}
		return SaveCertificates(dir, ca, server)
	default:
		return err
	}

	cert, _, err := loadPair(dir, serverName)
	if err == nil && time.Until(cert.NotAfter) > RenewBefore && cert.CheckSignatureFrom(ca.Certificate) == nil {
		return nil
	}
	server, err := GenerateServerCert(ca, serverName)
	if err != nil {
		return err
	}
	return savePair(dir, server.Name, server.Certificate, server.PrivateKey)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ServerConfig loads the control server key pair from dir.
func ServerConfig(dir string) (*cryptotls.Config, error) {
	pair, err := cryptotls.LoadX509KeyPair(
		filepath.Join(dir, serverName+".crt"),
		filepath.Join(dir, serverName+".key"),
	)
	if err != nil {
		return nil, oops.Code("CERT_LOAD_FAILED").With("dir", dir).Wrap(err)
	}
	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{pair},
		MinVersion:   cryptotls.VersionTLS13,
	}, nil
}

// ClientConfig trusts only the CA in dir and verifies ServerHost.
func ClientConfig(dir string) (*cryptotls.Config, error) {
	ca, err := readPEM(filepath.Clean(filepath.Join(dir, caName+".crt")), "CERTIFICATE")
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem.EncodeToMemory(ca)) {
		return nil, oops.Code("CERT_LOAD_FAILED").With("dir", dir).Errorf("invalid CA certificate")
	}
	return &cryptotls.Config{
		RootCAs:    pool,
		ServerName: ServerHost,
		MinVersion: cryptotls.VersionTLS13,
	}, nil
}
