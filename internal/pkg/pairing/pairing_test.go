package pairing

import (
	"bufio"
	"context"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeLapServer struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

func pipeDialer(t *testing.T) (Option, *fakeLapServer) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	dial := func(ctx context.Context, host string) (net.Conn, []byte, error) {
		return client, nil, nil
	}
	return WithDialer(dial), &fakeLapServer{conn: server, scanner: bufio.NewScanner(server)}
}

func staticVerifier(version string) Option {
	return WithVerifier(func(ctx context.Context, host string, creds *Credentials) (string, error) {
		return version, nil
	})
}

func (s *fakeLapServer) sendJSON(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	_, err = s.conn.Write(append(data, '\r', '\n'))
	require.NoError(t, err)
}

func (s *fakeLapServer) sendPhysicalAccess(t *testing.T) {
	s.sendJSON(t, map[string]any{
		"Header": map[string]any{"ContentType": "status;plurality=single"},
		"Body": map[string]any{
			"Status": map[string]any{"Permissions": []string{"PhysicalAccess"}},
		},
	})
}

func (s *fakeLapServer) readRequest(t *testing.T) map[string]any {
	t.Helper()
	require.True(t, s.scanner.Scan(), "expected a pairing request")
	request := map[string]any{}
	require.NoError(t, json.Unmarshal(s.scanner.Bytes(), &request))
	return request
}

func TestPairSuccess(t *testing.T) {
	dialer, server := pipeDialer(t)

	readyCalls := 0
	type result struct {
		creds *Credentials
		err   error
	}
	results := make(chan result, 1)
	go func() {
		creds, err := Pair(context.Background(), "192.0.2.1", func() { readyCalls++ },
			dialer, staticVerifier("1.115"), WithLogger(zaptest.NewLogger(t)))
		results <- result{creds, err}
	}()

	// Noise before the button press must be ignored.
	server.sendJSON(t, map[string]any{"Header": map[string]any{"ContentType": "status;"}})
	server.sendPhysicalAccess(t)

	request := server.readRequest(t)
	header := request["Header"].(map[string]any)
	assert.Equal(t, "Execute", header["RequestType"])
	assert.Equal(t, "/pair", header["Url"])
	assert.Equal(t, "get-cert", header["ClientTag"])

	body := request["Body"].(map[string]any)
	assert.Equal(t, "CSR", body["CommandType"])
	params := body["Parameters"].(map[string]any)
	assert.Equal(t, "000000000000", params["DeviceUID"])
	assert.Equal(t, "Admin", params["Role"])

	block, _ := pem.Decode([]byte(params["CSR"].(string)))
	require.NotNil(t, block, "CSR must be PEM encoded")
	assert.Equal(t, "CERTIFICATE REQUEST", block.Type)

	server.sendJSON(t, map[string]any{
		"Header": map[string]any{"ClientTag": "get-cert"},
		"Body": map[string]any{
			"SigningResult": map[string]any{
				"Certificate":     "-----BEGIN CERTIFICATE-----\nsigned\n-----END CERTIFICATE-----\n",
				"RootCertificate": "-----BEGIN CERTIFICATE-----\nroot\n-----END CERTIFICATE-----\n",
			},
		},
	})

	res := <-results
	require.NoError(t, res.err)
	assert.Equal(t, 1, readyCalls)
	assert.Equal(t, "1.115", res.creds.Version)
	assert.Contains(t, string(res.creds.Cert), "signed")
	assert.Contains(t, string(res.creds.CA), "root")
	assert.Contains(t, string(res.creds.Key), "PRIVATE KEY")
}

func TestPairButtonTimeout(t *testing.T) {
	dialer, _ := pipeDialer(t)

	_, err := Pair(context.Background(), "192.0.2.1", nil,
		dialer, staticVerifier("1.115"), WithButtonTimeout(100*time.Millisecond))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPairNeverSigns(t *testing.T) {
	dialer, server := pipeDialer(t)

	done := make(chan error, 1)
	go func() {
		_, err := Pair(context.Background(), "192.0.2.1", nil,
			dialer, staticVerifier("1.115"), WithSocketTimeout(100*time.Millisecond))
		done <- err
	}()

	server.sendPhysicalAccess(t)
	_ = server.readRequest(t)
	// The bridge accepted the connection but never signs the CSR.

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("pairing did not time out")
	}
}

func TestPairRejected(t *testing.T) {
	dialer, server := pipeDialer(t)

	done := make(chan error, 1)
	go func() {
		_, err := Pair(context.Background(), "192.0.2.1", nil, dialer, staticVerifier("1.115"))
		done <- err
	}()

	server.sendPhysicalAccess(t)
	_ = server.readRequest(t)
	server.sendJSON(t, map[string]any{
		"Header": map[string]any{"ClientTag": "get-cert"},
		"Body":   map[string]any{},
	})

	assert.ErrorIs(t, <-done, ErrRejected)
}

func TestPairTransportError(t *testing.T) {
	dialErr := errors.New("connection refused")
	_, err := Pair(context.Background(), "192.0.2.1", nil,
		WithDialer(func(ctx context.Context, host string) (net.Conn, []byte, error) {
			return nil, nil, dialErr
		}))

	terr := &TransportError{}
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, terr, dialErr)
}

func TestEmbeddedAssetsParse(t *testing.T) {
	for name, pemText := range map[string]string{
		"lap ca":      lapCAPEM,
		"lap cert":    lapCertPEM,
		"lap key":     lapKeyPEM,
		"lutron root": lutronRootCAPEM,
	} {
		block, _ := pem.Decode([]byte(pemText))
		require.NotNil(t, block, name)
		assert.True(t, strings.HasSuffix(block.Type, "KEY") || block.Type == "CERTIFICATE", name)
	}
}
