package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/vyrodovalexey/avkms/internal/observability"
)

// Certificate source timing constants.
const (
	// DefaultSourceDebounce is the default debounce delay for file change events.
	DefaultSourceDebounce = 100 * time.Millisecond

	// DefaultExpiryCheckInterval is the default interval for checking certificate expiry.
	DefaultExpiryCheckInterval = 1 * time.Hour

	// DefaultExpiryWarningThreshold is the default threshold for warning about expiring certificates.
	DefaultExpiryWarningThreshold = 7 * 24 * time.Hour
)

// CertificateEventType represents the type of certificate event.
type CertificateEventType int

// Certificate event type constants.
const (
	// CertificateEventLoaded indicates a certificate was initially loaded.
	CertificateEventLoaded CertificateEventType = iota

	// CertificateEventReloaded indicates a certificate was reloaded.
	CertificateEventReloaded

	// CertificateEventExpiring indicates a certificate is about to expire.
	CertificateEventExpiring

	// CertificateEventError indicates an error occurred during certificate operations.
	CertificateEventError
)

// String returns the string representation of the event type.
func (t CertificateEventType) String() string {
	switch t {
	case CertificateEventLoaded:
		return "loaded"
	case CertificateEventReloaded:
		return "reloaded"
	case CertificateEventExpiring:
		return "expiring"
	case CertificateEventError:
		return "error"
	default:
		return "unknown"
	}
}

// CertificateEvent represents an event from a certificate source.
type CertificateEvent struct {
	// Type is the type of event.
	Type CertificateEventType

	// Certificate is the certificate associated with the event (may be nil for errors).
	Certificate *tls.Certificate

	// Error is the error associated with the event (for CertificateEventError).
	Error error

	// Message provides additional context about the event.
	Message string
}

// certificateSourceKind identifies how the certificate material is supplied.
type certificateSourceKind int

const (
	sourceBundle certificateSourceKind = iota
	sourcePair
	sourceInline
)

// ClientCertificateConfig configures the client certificate source.
type ClientCertificateConfig struct {
	// Bundle is the path to a file carrying the certificate chain and
	// private key together: either a combined PEM file or a PKCS#12
	// archive (.pfx/.p12).
	Bundle string `yaml:"bundle,omitempty" json:"bundle,omitempty"`

	// Password decrypts a PKCS#12 bundle. Ignored for PEM material.
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// CertFile is the path to the certificate file (PEM).
	CertFile string `yaml:"certFile,omitempty" json:"certFile,omitempty"`

	// KeyFile is the path to the private key file (PEM).
	KeyFile string `yaml:"keyFile,omitempty" json:"keyFile,omitempty"`

	// CertData is the PEM-encoded certificate (inline).
	CertData string `yaml:"certData,omitempty" json:"certData,omitempty"`

	// KeyData is the PEM-encoded private key (inline).
	KeyData string `yaml:"keyData,omitempty" json:"keyData,omitempty"`

	// ReloadInterval enables hot-reload of file-based material
	// (0 = disabled).
	ReloadInterval time.Duration `yaml:"reloadInterval,omitempty" json:"reloadInterval,omitempty"`
}

// Validate validates the client certificate configuration.
func (c *ClientCertificateConfig) Validate() error {
	if c == nil {
		return NewConfigurationError("clientCertificate", "certificate configuration is nil")
	}

	switch c.kind() {
	case sourceBundle:
		if c.CertFile != "" || c.KeyFile != "" || c.CertData != "" || c.KeyData != "" {
			return NewConfigurationError("clientCertificate.bundle",
				"bundle is mutually exclusive with split certificate material")
		}
	case sourcePair:
		if c.CertFile == "" {
			return NewConfigurationError("clientCertificate.certFile", "certificate file path required")
		}
		if c.KeyFile == "" {
			return NewConfigurationError("clientCertificate.keyFile", "key file path required")
		}
	case sourceInline:
		if c.CertData == "" {
			return NewConfigurationError("clientCertificate.certData", "certificate data required")
		}
		if c.KeyData == "" {
			return NewConfigurationError("clientCertificate.keyData", "key data required")
		}
	}

	return nil
}

// kind infers the source kind from the populated fields.
func (c *ClientCertificateConfig) kind() certificateSourceKind {
	switch {
	case c.Bundle != "":
		return sourceBundle
	case c.CertData != "" || c.KeyData != "":
		return sourceInline
	default:
		return sourcePair
	}
}

// Clone creates a deep copy of the ClientCertificateConfig.
func (c *ClientCertificateConfig) Clone() *ClientCertificateConfig {
	if c == nil {
		return nil
	}

	return &ClientCertificateConfig{
		Bundle:         c.Bundle,
		Password:       c.Password,
		CertFile:       c.CertFile,
		KeyFile:        c.KeyFile,
		CertData:       c.CertData,
		KeyData:        c.KeyData,
		ReloadInterval: c.ReloadInterval,
	}
}

// ClientCertificateSource loads the client certificate and supports
// hot-reload so the signing material follows rotation on disk.
type ClientCertificateSource struct {
	config  *ClientCertificateConfig
	logger  observability.Logger
	metrics MetricsRecorder

	certificate atomic.Pointer[tls.Certificate]

	watcher   *fsnotify.Watcher
	eventCh   chan CertificateEvent
	stopCh    chan struct{}
	stoppedCh chan struct{}

	mu      sync.RWMutex
	closed  bool
	started bool

	debounceDelay   time.Duration
	expiryInterval  time.Duration
	expiryThreshold time.Duration
}

// SourceOption is a functional option for configuring ClientCertificateSource.
type SourceOption func(*ClientCertificateSource)

// WithSourceLogger sets the logger for the certificate source.
func WithSourceLogger(logger observability.Logger) SourceOption {
	return func(s *ClientCertificateSource) {
		s.logger = logger
	}
}

// WithSourceMetrics sets the metrics recorder for the certificate source.
func WithSourceMetrics(metrics MetricsRecorder) SourceOption {
	return func(s *ClientCertificateSource) {
		s.metrics = metrics
	}
}

// WithSourceDebounce sets the debounce delay for file change events.
func WithSourceDebounce(delay time.Duration) SourceOption {
	return func(s *ClientCertificateSource) {
		s.debounceDelay = delay
	}
}

// WithExpiryCheck overrides the expiry check interval and warning threshold.
func WithExpiryCheck(interval, threshold time.Duration) SourceOption {
	return func(s *ClientCertificateSource) {
		s.expiryInterval = interval
		s.expiryThreshold = threshold
	}
}

// NewClientCertificateSource creates a certificate source and loads the
// initial certificate.
func NewClientCertificateSource(config *ClientCertificateConfig, opts ...SourceOption) (*ClientCertificateSource, error) {
	if config == nil {
		return nil, NewConfigurationError("clientCertificate", "certificate configuration is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &ClientCertificateSource{
		config:          config.Clone(),
		logger:          observability.NopLogger(),
		metrics:         NewNopMetrics(),
		eventCh:         make(chan CertificateEvent, 10),
		stopCh:          make(chan struct{}),
		stoppedCh:       make(chan struct{}),
		debounceDelay:   DefaultSourceDebounce,
		expiryInterval:  DefaultExpiryCheckInterval,
		expiryThreshold: DefaultExpiryWarningThreshold,
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

// Start begins watching for certificate file changes and expiry.
func (s *ClientCertificateSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if s.config.ReloadInterval <= 0 || len(s.watchedFiles()) == 0 {
		s.logger.Debug("certificate hot-reload disabled")
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return WrapError(err, "failed to create file watcher")
	}
	s.watcher = watcher

	watched := make(map[string]bool)
	for _, file := range s.watchedFiles() {
		dir := filepath.Dir(file)
		if watched[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			s.watcher = nil
			s.mu.Lock()
			s.started = false
			s.mu.Unlock()
			return WrapError(err, "failed to watch certificate directory")
		}
		watched[dir] = true
		s.logger.Info("watching certificate file",
			observability.String("path", file),
		)
	}

	go s.watchLoop(ctx)

	s.sendEvent(CertificateEvent{
		Type:        CertificateEventLoaded,
		Certificate: s.certificate.Load(),
		Message:     "certificate loaded",
	})

	return nil
}

// Certificate returns the current client certificate.
func (s *ClientCertificateSource) Certificate() (*tls.Certificate, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrSourceClosed
	}
	s.mu.RUnlock()

	cert := s.certificate.Load()
	if cert == nil {
		return nil, ErrCertificateNotFound
	}

	return cert, nil
}

// Leaf returns the parsed leaf certificate.
func (s *ClientCertificateSource) Leaf() (*x509.Certificate, error) {
	cert, err := s.Certificate()
	if err != nil {
		return nil, err
	}
	if cert.Leaf == nil {
		return nil, ErrCertificateInvalid
	}
	return cert.Leaf, nil
}

// Watch returns a channel that receives certificate events.
func (s *ClientCertificateSource) Watch() <-chan CertificateEvent {
	return s.eventCh
}

// Close stops the file watcher and releases resources.
func (s *ClientCertificateSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	close(s.stopCh)

	if started {
		<-s.stoppedCh
	}

	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			return WrapError(err, "failed to close file watcher")
		}
	}

	close(s.eventCh)

	return nil
}

// load loads the certificate from the configured source.
func (s *ClientCertificateSource) load() error {
	var cert *tls.Certificate
	var err error

	switch s.config.kind() {
	case sourceBundle:
		cert, err = LoadCertificateFromBundle(s.config.Bundle, s.config.Password)
	case sourcePair:
		cert, err = LoadCertificateFromFile(s.config.CertFile, s.config.KeyFile)
	case sourceInline:
		cert, err = LoadCertificateFromPEM([]byte(s.config.CertData), []byte(s.config.KeyData))
	}
	if err != nil {
		s.metrics.RecordCertificateReload(false)
		return err
	}

	if cert.Leaf != nil {
		s.logger.Info("client certificate loaded",
			observability.String("subject", cert.Leaf.Subject.CommonName),
			observability.Time("notBefore", cert.Leaf.NotBefore),
			observability.Time("notAfter", cert.Leaf.NotAfter),
		)
	}

	s.certificate.Store(cert)
	s.metrics.RecordCertificateReload(true)
	s.metrics.UpdateCertificateExpiryFromTLS(cert, "client")
	return nil
}

// watchedFiles returns the file paths subject to hot-reload.
func (s *ClientCertificateSource) watchedFiles() []string {
	var files []string
	if s.config.Bundle != "" {
		files = append(files, s.config.Bundle)
	}
	if s.config.CertFile != "" {
		files = append(files, s.config.CertFile)
	}
	if s.config.KeyFile != "" {
		files = append(files, s.config.KeyFile)
	}
	return files
}

// watchLoop handles file change and expiry check events.
func (s *ClientCertificateSource) watchLoop(ctx context.Context) {
	defer close(s.stoppedCh)

	expiryTicker := time.NewTicker(s.expiryInterval)
	defer expiryTicker.Stop()

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("certificate watcher stopped due to context cancellation")
			return

		case <-s.stopCh:
			s.logger.Info("certificate watcher stopped")
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			debounceTimer, debounceCh = s.handleFileEvent(event, debounceTimer, debounceCh)

		case <-debounceCh:
			debounceCh = nil
			s.reload()

		case <-expiryTicker.C:
			s.checkExpiry()

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("file watcher error", observability.Error(err))
			s.sendEvent(CertificateEvent{
				Type:    CertificateEventError,
				Error:   err,
				Message: "file watcher error",
			})
		}
	}
}

// handleFileEvent processes a file system event.
func (s *ClientCertificateSource) handleFileEvent(
	event fsnotify.Event,
	debounceTimer *time.Timer,
	debounceCh <-chan time.Time,
) (timer *time.Timer, ch <-chan time.Time) {
	cleanPath := filepath.Clean(event.Name)
	if !s.isRelevantFile(cleanPath) {
		return debounceTimer, debounceCh
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return debounceTimer, debounceCh
	}

	s.logger.Debug("certificate file changed",
		observability.String("path", event.Name),
		observability.String("op", event.Op.String()),
	)

	if debounceTimer != nil {
		debounceTimer.Stop()
	}
	debounceTimer = time.NewTimer(s.debounceDelay)
	return debounceTimer, debounceTimer.C
}

// isRelevantFile checks if the given path is a file we're watching.
func (s *ClientCertificateSource) isRelevantFile(cleanPath string) bool {
	for _, file := range s.watchedFiles() {
		if cleanPath == filepath.Clean(file) {
			return true
		}
	}
	return false
}

// reload reloads the certificate after a file change.
func (s *ClientCertificateSource) reload() {
	s.logger.Info("reloading client certificate")

	if err := s.load(); err != nil {
		s.logger.Error("failed to reload client certificate", observability.Error(err))
		s.sendEvent(CertificateEvent{
			Type:    CertificateEventError,
			Error:   err,
			Message: "failed to reload certificate",
		})
		return
	}

	s.sendEvent(CertificateEvent{
		Type:        CertificateEventReloaded,
		Certificate: s.certificate.Load(),
		Message:     "certificate reloaded",
	})
}

// checkExpiry warns when the current certificate approaches expiry.
func (s *ClientCertificateSource) checkExpiry() {
	cert := s.certificate.Load()
	if cert == nil || cert.Leaf == nil {
		return
	}

	s.metrics.UpdateCertificateExpiry(cert.Leaf, "client")

	remaining := time.Until(cert.Leaf.NotAfter)
	if remaining > s.expiryThreshold {
		return
	}

	s.logger.Warn("client certificate expiring",
		observability.String("subject", cert.Leaf.Subject.CommonName),
		observability.Time("notAfter", cert.Leaf.NotAfter),
		observability.Duration("remaining", remaining),
	)
	s.sendEvent(CertificateEvent{
		Type:        CertificateEventExpiring,
		Certificate: cert,
		Message:     "certificate expiring",
	})
}

// sendEvent sends an event to the event channel.
func (s *ClientCertificateSource) sendEvent(event CertificateEvent) {
	select {
	case s.eventCh <- event:
	default:
		s.logger.Warn("certificate event channel full, dropping event",
			observability.String("type", event.Type.String()),
		)
	}
}

// LoadCertificateFromFile loads a certificate from a PEM file pair.
func LoadCertificateFromFile(certFile, keyFile string) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, NewCertificateErrorWithCause(certFile, "failed to load certificate", err)
	}

	if err := parseLeaf(&cert); err != nil {
		return nil, err
	}

	return &cert, nil
}

// LoadCertificateFromPEM loads a certificate from PEM data.
func LoadCertificateFromPEM(certPEM, keyPEM []byte) (*tls.Certificate, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, NewCertificateErrorWithCause("", "failed to parse certificate", err)
	}

	if err := parseLeaf(&cert); err != nil {
		return nil, err
	}

	return &cert, nil
}

// LoadCertificateFromBundle loads a certificate from a combined file
// carrying both the chain and the private key: a combined PEM file or a
// PKCS#12 archive.
func LoadCertificateFromBundle(path, password string) (*tls.Certificate, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- bundle path from trusted config
	if err != nil {
		return nil, NewCertificateErrorWithCause(path, "failed to read certificate bundle", err)
	}

	if block, _ := pem.Decode(data); block != nil {
		cert, err := certificateFromCombinedPEM(data)
		if err != nil {
			return nil, NewCertificateErrorWithCause(path, "failed to parse PEM bundle", err)
		}
		return cert, nil
	}

	cert, err := certificateFromPKCS12(data, password)
	if err != nil {
		return nil, NewCertificateErrorWithCause(path, "failed to parse PKCS#12 bundle", err)
	}
	return cert, nil
}

// certificateFromCombinedPEM splits a combined PEM bundle into certificate
// and key material and assembles a tls.Certificate.
func certificateFromCombinedPEM(data []byte) (*tls.Certificate, error) {
	var certPEM, keyPEM []byte

	rest := data
	for len(rest) > 0 {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}

		switch {
		case block.Type == "CERTIFICATE":
			certPEM = append(certPEM, pem.EncodeToMemory(block)...)
		case block.Type == "PRIVATE KEY" || strings.HasSuffix(block.Type, " PRIVATE KEY"):
			if keyPEM != nil {
				return nil, NewCertificateError("", "multiple private keys in bundle")
			}
			keyPEM = pem.EncodeToMemory(block)
		}
	}

	if len(certPEM) == 0 {
		return nil, NewCertificateError("", "no certificate in bundle")
	}
	if keyPEM == nil {
		return nil, NewCertificateError("", "no private key in bundle")
	}

	return LoadCertificateFromPEM(certPEM, keyPEM)
}

// certificateFromPKCS12 decodes a PKCS#12 archive into a tls.Certificate.
func certificateFromPKCS12(data []byte, password string) (*tls.Certificate, error) {
	key, leaf, caCerts, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return nil, err
	}

	chain := make([][]byte, 0, 1+len(caCerts))
	chain = append(chain, leaf.Raw)
	for _, ca := range caCerts {
		chain = append(chain, ca.Raw)
	}

	return &tls.Certificate{
		Certificate: chain,
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

// parseLeaf populates cert.Leaf from the first certificate in the chain.
func parseLeaf(cert *tls.Certificate) error {
	if len(cert.Certificate) == 0 {
		return NewCertificateError("", "certificate chain is empty")
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return NewCertificateErrorWithCause("", "failed to parse leaf certificate", err)
	}
	cert.Leaf = leaf
	return nil
}

// ValidateCertificateKeyPair validates that a certificate and key match.
func ValidateCertificateKeyPair(certPEM, keyPEM []byte) error {
	if _, err := tls.X509KeyPair(certPEM, keyPEM); err != nil {
		return NewCertificateErrorWithCause("", "certificate and key do not match", ErrCertificateKeyMismatch)
	}
	return nil
}
