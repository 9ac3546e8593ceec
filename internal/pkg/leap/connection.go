package leap

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultPort is the LEAP operations port.
	DefaultPort = 8081

	// MaxMessageSize bounds a single message. Some bridges emit /device
	// responses well over 128 KiB.
	MaxMessageSize = 256 * 1024

	dialTimeout = 15 * time.Second
)

// Connection reads and writes newline-delimited JSON messages on a stream.
// A message is a UTF-8 JSON object terminated by \r\n.
type Connection struct {
	conn   net.Conn
	reader *bufio.Reader
	logger *zap.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// NewConnection wraps an established stream. Dial is the usual entry point;
// this form exists for pairing and for tests speaking over a pipe.
func NewConnection(conn net.Conn, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connection{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, 8192),
		logger: logger,
		closed: make(chan struct{}),
	}
}

// Dial opens a TLS connection to a LEAP endpoint using the bridge's
// certificate profile.
func Dial(ctx context.Context, host string, port int, tlsCfg *tls.Config, logger *zap.Logger) (*Connection, error) {
	if port == 0 {
		port = DefaultPort
	}
	dialer := &net.Dialer{Timeout: dialTimeout}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	raw, err := dialer.DialContext(ctx, "tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	tlsConn := tls.Client(raw, tlsCfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("tls handshake with %s: %w", addr, err)
	}
	return NewConnection(tlsConn, logger), nil
}

// WriteMessage sends a single message followed by \r\n.
func (c *Connection) WriteMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.WriteLine(data)
}

// WriteLine appends \r\n to data and writes it out.
func (c *Connection) WriteLine(data []byte) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.logger.Debug("sending", zap.ByteString("line", data))
	if _, err := c.conn.Write(append(data, '\r', '\n')); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// ReadMessage reads the next decodable message. Lines that fail to decode
// are logged and skipped; a partial line at EOF terminates the stream with
// ErrLineTruncated; clean EOF surfaces as io.EOF.
func (c *Connection) ReadMessage() (*Message, error) {
	for {
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			continue
		}
		msg := &Message{}
		if err := json.Unmarshal(line, msg); err != nil {
			derr := &DecodeError{Raw: line, Err: err}
			c.logger.Warn("dropping undecodable line", zap.Error(derr))
			continue
		}
		c.logger.Debug("received", zap.ByteString("line", line))
		return msg, nil
	}
}

func (c *Connection) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := c.reader.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > MaxMessageSize {
			return nil, ErrMessageTooLarge
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(line) > 0 {
				return nil, ErrLineTruncated
			}
			return nil, io.EOF
		}
		return nil, err
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, nil
}

// Close half-closes the write side where supported and releases the stream.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		if tlsConn, ok := c.conn.(*tls.Conn); ok {
			_ = tlsConn.CloseWrite()
		}
		err = c.conn.Close()
	})
	return err
}

// TLSConfig builds the client TLS profile the bridges require: mutual TLS
// with the paired client certificate, the server checked against the
// pairing CA by chain only. Hostname verification is disabled because the
// bridge presents a self-signed leaf whose CN never matches the address,
// and SNI is suppressed because sending it makes some firmwares present a
// different certificate that fails validation.
func TLSConfig(clientCert tls.Certificate, caPool *x509.CertPool) *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{clientCert},

		// ServerName stays empty so no SNI goes out. Verification is
		// done in VerifyPeerCertificate against the pairing CA.
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: verifyChainOnly(caPool),
	}
}

func verifyChainOnly(caPool *x509.CertPool) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return errors.New("leap: server presented no certificate")
		}
		leaf, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("leap: parse server certificate: %w", err)
		}
		intermediates := x509.NewCertPool()
		for _, raw := range rawCerts[1:] {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				continue
			}
			intermediates.AddCert(cert)
		}
		_, err = leaf.Verify(x509.VerifyOptions{
			Roots:         caPool,
			Intermediates: intermediates,
			// The bridge certificates do not carry usable key usages on
			// every firmware generation.
			KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		})
		if err != nil {
			return fmt.Errorf("leap: server certificate verification failed: %w", err)
		}
		return nil
	}
}

// LoadTLSConfig reads the three credential files produced by pairing and
// builds the connection profile. The files are read up front so no file IO
// happens once the engine is running.
func LoadTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	clientCert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}
	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("load ca certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	return TLSConfig(clientCert, pool), nil
}
