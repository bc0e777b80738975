package rabbitmq

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jacklaaa89/amqptest"
)

// NewTLSConfig builds the client TLS configuration described by cfg.
// It returns nil when TLS is not enabled.
func NewTLSConfig(host string, cfg amqptest.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	serverName := cfg.ServerName
	if serverName == "" {
		serverName = host
	}

	tc := &tls.Config{
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}

	roots, err := loadRoots(cfg)
	if err != nil {
		return nil, err
	}
	tc.RootCAs = roots

	if cfg.CertFile != "" {
		pair, kErr := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if kErr != nil {
			return nil, &amqptest.ConfigurationError{Field: "tls.cert_file", Reason: "could not load key pair", Err: kErr}
		}
		tc.Certificates = []tls.Certificate{pair}
	}

	switch {
	case !cfg.VerifyPeer:
		tc.InsecureSkipVerify = true //nolint:gosec // explicitly requested by configuration.
	case !cfg.VerifyPeerName:
		// the standard verification always checks the host name, so we skip it and
		// verify the chain ourselves.
		tc.InsecureSkipVerify = true //nolint:gosec // chain is verified below.
		tc.VerifyPeerCertificate = verifyChain(roots)
	}

	return tc, nil
}

// loadRoots collects the certificate authorities from the CA file and every file in the CA path.
// nil is returned when neither is set, so the system pool is used.
func loadRoots(cfg amqptest.TLSConfig) (*x509.CertPool, error) {
	if cfg.CAFile == "" && cfg.CAPath == "" {
		return nil, nil
	}

	pool := x509.NewCertPool()
	files := make([]string, 0, 1)
	if cfg.CAFile != "" {
		files = append(files, cfg.CAFile)
	}

	if cfg.CAPath != "" {
		entries, err := os.ReadDir(cfg.CAPath)
		if err != nil {
			return nil, &amqptest.ConfigurationError{Field: "tls.ca_path", Reason: "could not read directory", Err: err}
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			files = append(files, filepath.Join(cfg.CAPath, e.Name()))
		}
	}

	var added int
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, &amqptest.ConfigurationError{Field: "tls", Reason: fmt.Sprintf("could not read %s", f), Err: err}
		}
		if pool.AppendCertsFromPEM(b) {
			added++
		}
	}

	if added == 0 {
		return nil, &amqptest.ConfigurationError{Field: "tls", Reason: "no certificate authorities found"}
	}
	return pool, nil
}

// verifyChain verifies the presented chain against roots without checking the host name.
func verifyChain(roots *x509.CertPool) func([][]byte, [][]*x509.Certificate) error {
	return func(raw [][]byte, _ [][]*x509.Certificate) error {
		if len(raw) == 0 {
			return errors.New("rabbitmq: broker presented no certificate")
		}

		certs := make([]*x509.Certificate, 0, len(raw))
		for _, r := range raw {
			c, err := x509.ParseCertificate(r)
			if err != nil {
				return err
			}
			certs = append(certs, c)
		}

		intermediates := x509.NewCertPool()
		for _, c := range certs[1:] {
			intermediates.AddCert(c)
		}

		_, err := certs[0].Verify(x509.VerifyOptions{Roots: roots, Intermediates: intermediates})
		return err
	}
}
