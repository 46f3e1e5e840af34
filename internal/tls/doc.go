// Package tls provides client-side TLS material for connections to the
// identity endpoint and other external services.
//
// The package covers three concerns:
//
//   - Trust stores: loading CA bundles from PEM files or inline data into
//     an x509.CertPool used to verify the identity endpoint.
//
//   - Cipher priority strings: parsing a colon or comma separated priority
//     string (keywords such as NORMAL, SECURE256 and FIPS, or explicit
//     cipher suite names) into TLS 1.2 cipher suite IDs validated against
//     a registry. TLS 1.3 suites are managed by Go and skipped.
//
//   - Client certificates: a hot-reloading certificate source for the
//     signing certificate used in assertion-based authentication. The
//     source accepts a split PEM pair, a combined PEM bundle, inline PEM
//     data, or a PKCS#12 archive, and watches the files for rotation.
//
// # Usage
//
// Building a transport TLS configuration:
//
//	cfg := &tls.ClientConfig{
//		TrustStore:     "/etc/avkms/ca.pem",
//		PriorityString: "SECURE256:!TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384",
//	}
//	tlsConfig, err := cfg.Build()
//	if err != nil {
//		return err
//	}
//
// Watching a client certificate for rotation:
//
//	source, err := tls.NewClientCertificateSource(&tls.ClientCertificateConfig{
//		Bundle:         "/etc/avkms/sp.pem",
//		ReloadInterval: time.Minute,
//	}, tls.WithSourceLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer source.Close()
//
//	if err := source.Start(ctx); err != nil {
//		return err
//	}
//	cert, err := source.Certificate()
package tls
