// Package pairing implements the LAP handshake that binds a client
// certificate to a bridge after a physical-button confirmation.
package pairing

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lutron-community/leap-go/internal/pkg/leap"
)

const (
	// PairingPort is the LAP bootstrap port.
	PairingPort = 8083

	// DefaultButtonTimeout is how long the user has to press the
	// physical button.
	DefaultButtonTimeout = 180 * time.Second

	// DefaultSocketTimeout bounds every other read during pairing.
	DefaultSocketTimeout = 10 * time.Second

	certCommonNamePrefix = "pylutron_caseta-"
	csrClientTag         = "get-cert"
)

var (
	// ErrTimeout is returned when the bridge never confirms the button
	// press or never signs the certificate request.
	ErrTimeout = errors.New("pairing: timed out")

	// ErrRejected is returned when the bridge answers the certificate
	// request without a signing result.
	ErrRejected = errors.New("pairing: bridge rejected the certificate request")
)

// TransportError wraps a network or TLS failure during pairing.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("pairing: transport failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Credentials is the result of a successful pairing.
type Credentials struct {
	CA      []byte // bridge CA certificate, PEM
	Cert    []byte // signed client certificate, PEM
	Key     []byte // client private key, PEM (PKCS#8)
	Version string // bridge-reported LEAP version
}

type pairer struct {
	logger        *zap.Logger
	buttonTimeout time.Duration
	socketTimeout time.Duration

	// dial opens the bootstrap session on port 8083. Injectable so tests
	// can speak over a pipe without TLS.
	dial func(ctx context.Context, host string) (net.Conn, []byte, error)

	// verify connects to the operations port with the fresh credentials
	// and returns the bridge's reported version.
	verify func(ctx context.Context, host string, creds *Credentials) (string, error)
}

// Option customizes a pairing run.
type Option func(*pairer)

// WithLogger sets the logger; the default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(p *pairer) {
		p.logger = logger
	}
}

// WithButtonTimeout overrides how long to wait for the physical button.
func WithButtonTimeout(d time.Duration) Option {
	return func(p *pairer) {
		p.buttonTimeout = d
	}
}

// WithSocketTimeout overrides the per-read deadline for protocol steps.
func WithSocketTimeout(d time.Duration) Option {
	return func(p *pairer) {
		p.socketTimeout = d
	}
}

// WithDialer replaces the bootstrap dialer. The dialer returns the
// connection and the CA the final credentials should carry when the bridge
// does not include one in its signing result.
func WithDialer(dial func(ctx context.Context, host string) (net.Conn, []byte, error)) Option {
	return func(p *pairer) {
		p.dial = dial
	}
}

// WithVerifier replaces the post-pair verification step.
func WithVerifier(verify func(ctx context.Context, host string, creds *Credentials) (string, error)) Option {
	return func(p *pairer) {
		p.verify = verify
	}
}

// Pair runs the LAP protocol against host. ready is invoked once when the
// bridge is waiting for its physical button to be pressed.
func Pair(ctx context.Context, host string, ready func(), opts ...Option) (*Credentials, error) {
	p := &pairer{
		logger:        zap.NewNop(),
		buttonTimeout: DefaultButtonTimeout,
		socketTimeout: DefaultSocketTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.dial == nil {
		p.dial = p.dialBootstrap
	}
	if p.verify == nil {
		p.verify = verifyCredentials
	}
	return p.pair(ctx, host, ready)
}

func (p *pairer) pair(ctx context.Context, host string, ready func()) (*Credentials, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("pairing: generate key: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("pairing: encode key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})

	csrDER, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject:            pkix.Name{CommonName: certCommonNamePrefix + uuid.NewString()},
		SignatureAlgorithm: x509.SHA256WithRSA,
	}, key)
	if err != nil {
		return nil, fmt.Errorf("pairing: build csr: %w", err)
	}
	csrPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: csrDER})

	conn, fallbackCA, err := p.dial(ctx, host)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer conn.Close()

	socket := &jsonSocket{conn: conn, reader: bufio.NewReader(conn), logger: p.logger}

	p.logger.Info("waiting for the physical button press", zap.String("host", host))
	if ready != nil {
		ready()
	}
	if err := p.awaitPhysicalAccess(socket); err != nil {
		return nil, err
	}

	certPEM, caPEM, err := p.requestCertificate(socket, string(csrPEM))
	if err != nil {
		return nil, err
	}
	if caPEM == "" {
		caPEM = string(fallbackCA)
	}

	creds := &Credentials{
		CA:   []byte(caPEM),
		Cert: []byte(certPEM),
		Key:  keyPEM,
	}

	version, err := p.verify(ctx, host, creds)
	if err != nil {
		return nil, err
	}
	creds.Version = version
	p.logger.Info("paired", zap.String("host", host), zap.String("leap_version", version))
	return creds, nil
}

// awaitPhysicalAccess drains status messages until one grants
// PhysicalAccess, within the button timeout.
func (p *pairer) awaitPhysicalAccess(socket *jsonSocket) error {
	deadline := time.Now().Add(p.buttonTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTimeout
		}
		msg := pairMessage{}
		if err := socket.read(remaining, &msg); err != nil {
			return err
		}
		if !strings.HasPrefix(msg.Header.ContentType, "status;") {
			continue
		}
		body := struct {
			Status struct {
				Permissions []string `json:"Permissions"`
			} `json:"Status"`
		}{}
		if len(msg.Body) > 0 {
			if err := json.Unmarshal(msg.Body, &body); err != nil {
				continue
			}
		}
		for _, permission := range body.Status.Permissions {
			if permission == "PhysicalAccess" {
				return nil
			}
		}
	}
}

// requestCertificate submits the CSR and waits for the signing result. The
// body schema is the literal shape observed on the wire.
func (p *pairer) requestCertificate(socket *jsonSocket, csr string) (cert, ca string, err error) {
	request := map[string]any{
		"Header": map[string]any{
			"RequestType": "Execute",
			"Url":         "/pair",
			"ClientTag":   csrClientTag,
		},
		"Body": map[string]any{
			"CommandType": "CSR",
			"Parameters": map[string]any{
				"CSR":         csr,
				"DisplayName": strings.TrimSuffix(certCommonNamePrefix, "-"),
				"DeviceUID":   "000000000000",
				"Role":        "Admin",
			},
		},
	}
	if err := socket.write(request); err != nil {
		return "", "", err
	}

	for {
		msg := pairMessage{}
		if err := socket.read(p.socketTimeout, &msg); err != nil {
			return "", "", err
		}
		if msg.Header.ClientTag != csrClientTag {
			continue
		}
		body := struct {
			SigningResult *struct {
				Certificate     string `json:"Certificate"`
				RootCertificate string `json:"RootCertificate"`
			} `json:"SigningResult"`
		}{}
		if len(msg.Body) > 0 {
			if err := json.Unmarshal(msg.Body, &body); err != nil {
				return "", "", ErrRejected
			}
		}
		if body.SigningResult == nil || body.SigningResult.Certificate == "" {
			return "", "", ErrRejected
		}
		return body.SigningResult.Certificate, body.SigningResult.RootCertificate, nil
	}
}

// dialBootstrap opens the 8083 session with the shared LAP credentials,
// falling back to the processor root CA when the Caseta LAP CA does not
// validate the bridge. The fallback CA is also what ends up in the saved
// credentials in that case.
func (p *pairer) dialBootstrap(ctx context.Context, host string) (net.Conn, []byte, error) {
	bootstrapCert, err := tls.X509KeyPair([]byte(lapCertPEM), []byte(lapKeyPEM))
	if err != nil {
		return nil, nil, fmt.Errorf("load bootstrap certificate: %w", err)
	}

	conn, err := dialTLS(ctx, host, bootstrapCert, []byte(lapCAPEM))
	if err == nil {
		return conn, nil, nil
	}

	// Processor-generation bridges present a chain under lutron-root.
	p.logger.Debug("bootstrap CA mismatch, retrying with processor root", zap.Error(err))
	conn, rootErr := dialTLS(ctx, host, bootstrapCert, []byte(lutronRootCAPEM))
	if rootErr != nil {
		return nil, nil, err
	}
	return conn, []byte(lutronRootCAPEM), nil
}

func dialTLS(ctx context.Context, host string, cert tls.Certificate, caPEM []byte) (net.Conn, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, errors.New("invalid embedded CA")
	}
	dialer := &net.Dialer{Timeout: DefaultSocketTimeout}
	addr := net.JoinHostPort(host, strconv.Itoa(PairingPort))
	raw, err := dialer.DialContext(ctx, "tcp4", addr)
	if err != nil {
		return nil, err
	}
	tlsConn := tls.Client(raw, leap.TLSConfig(cert, pool))
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return tlsConn, nil
}

// verifyCredentials connects to the operations port with the new
// credentials and reads the server ping, which reports the LEAP version.
func verifyCredentials(ctx context.Context, host string, creds *Credentials) (string, error) {
	clientCert, err := tls.X509KeyPair(creds.Cert, creds.Key)
	if err != nil {
		return "", fmt.Errorf("pairing: signed certificate unusable: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(creds.CA) {
		return "", errors.New("pairing: bridge CA unusable")
	}

	conn, err := leap.Dial(ctx, host, leap.DefaultPort, leap.TLSConfig(clientCert, pool), nil)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer conn.Close()

	err = conn.WriteMessage(&leap.Message{
		CommuniqueType: leap.ReadRequest,
		Header:         leap.Header{Url: "/server/1/status/ping"},
	})
	if err != nil {
		return "", &TransportError{Err: err}
	}

	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			return "", &TransportError{Err: err}
		}
		if msg.CommuniqueType != leap.ReadResponse {
			continue
		}
		body := struct {
			PingResponse struct {
				LEAPVersion json.Number `json:"LEAPVersion"`
			} `json:"PingResponse"`
		}{}
		if err := msg.DecodeBody(&body); err != nil {
			return "", err
		}
		return body.PingResponse.LEAPVersion.String(), nil
	}
}

// pairMessage is the LAP bootstrap envelope. It predates the LEAP
// communique framing and has its own header fields.
type pairMessage struct {
	Header struct {
		ContentType string `json:"ContentType"`
		StatusCode  string `json:"StatusCode"`
		ClientTag   string `json:"ClientTag"`
	} `json:"Header"`
	Body json.RawMessage `json:"Body"`
}

// jsonSocket reads and writes newline-delimited JSON with per-read
// deadlines.
type jsonSocket struct {
	conn   net.Conn
	reader *bufio.Reader
	logger *zap.Logger
}

func (s *jsonSocket) read(timeout time.Duration, v any) error {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return &TransportError{Err: err}
	}
	line, err := s.reader.ReadBytes('\n')
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrTimeout
		}
		return &TransportError{Err: err}
	}
	s.logger.Debug("pairing received", zap.ByteString("line", line))
	return json.Unmarshal(line, v)
}

func (s *jsonSocket) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.logger.Debug("pairing sending", zap.ByteString("line", data))
	if _, err := s.conn.Write(append(data, '\r', '\n')); err != nil {
		return &TransportError{Err: err}
	}
	return nil
}
