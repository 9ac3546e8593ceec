package leap

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestConnection(t *testing.T) (*Connection, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	conn := NewConnection(client, zaptest.NewLogger(t))
	t.Cleanup(func() {
		_ = conn.Close()
		_ = server.Close()
	})
	return conn, server
}

func TestWriteLineAppendsCRLF(t *testing.T) {
	conn, server := newTestConnection(t)

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := server.Read(buf)
		done <- buf[:n]
	}()

	require.NoError(t, conn.WriteLine([]byte(`{"a":1}`)))
	assert.Equal(t, "{\"a\":1}\r\n", string(<-done))
}

func TestReadSkipsUndecodableLines(t *testing.T) {
	conn, server := newTestConnection(t)

	go func() {
		_, _ = server.Write([]byte("?\r\n{\"CommuniqueType\":\"ReadResponse\",\"Header\":{\"Url\":\"/device\"}}\r\n"))
	}()

	msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "/device", msg.Header.Url)
}

func TestReadLargeMessage(t *testing.T) {
	conn, server := newTestConnection(t)

	// A /device response well past 128 KiB exercises buffer growth.
	padding := strings.Repeat("x", 160*1024)
	line := fmt.Sprintf(`{"CommuniqueType":"ReadResponse","Header":{"Url":"/device"},"Body":{"Padding":%q}}`, padding)

	go func() {
		_, _ = server.Write([]byte(line + "\r\n"))
	}()

	msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var body struct {
		Padding string
	}
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Len(t, body.Padding, 160*1024)
}

func TestReadTruncatedAtEOF(t *testing.T) {
	conn, server := newTestConnection(t)

	go func() {
		_, _ = server.Write([]byte(`{"CommuniqueType":"ReadRes`))
		_ = server.Close()
	}()

	_, err := conn.ReadMessage()
	assert.ErrorIs(t, err, ErrLineTruncated)
}

func TestReadCleanEOF(t *testing.T) {
	conn, server := newTestConnection(t)

	go func() {
		_ = server.Close()
	}()

	_, err := conn.ReadMessage()
	assert.ErrorIs(t, err, io.EOF)
}

func TestWriteAfterClose(t *testing.T) {
	conn, _ := newTestConnection(t)
	require.NoError(t, conn.Close())
	assert.ErrorIs(t, conn.WriteLine([]byte("{}")), ErrConnectionClosed)
}

func TestWriteMessageIsReadableLine(t *testing.T) {
	conn, server := newTestConnection(t)

	lines := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(server)
		if scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	require.NoError(t, conn.WriteMessage(&Message{
		CommuniqueType: ReadRequest,
		Header:         Header{ClientTag: "7", Url: "/area"},
	}))

	select {
	case line := <-lines:
		assert.JSONEq(t, `{"CommuniqueType":"ReadRequest","Header":{"ClientTag":"7","Url":"/area"}}`, line)
	case <-time.After(time.Second):
		t.Fatal("no line received")
	}
}
