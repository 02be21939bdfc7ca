package registry

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/partsol/checkmate/pipeerr"
)

// clientTLS builds the tls.Config for the etcd client, or nil when TLS is
// disabled. All three files are required once enabled.
func clientTLS(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if cfg.CertFile == "" || cfg.KeyFile == "" || cfg.CAFile == "" {
		return nil, pipeerr.New("registry", "tls", pipeerr.ErrCodeConfig,
			"cert, key and CA files are all required when TLS is enabled")
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, pipeerr.New("registry", "tls", pipeerr.ErrCodeConfig,
			"failed to load client certificate").WithCause(err)
	}
	caData, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, pipeerr.New("registry", "tls", pipeerr.ErrCodeConfig,
			"failed to read CA certificate").WithCause(err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caData) {
		return nil, pipeerr.New("registry", "tls", pipeerr.ErrCodeConfig,
			"failed to parse CA certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
