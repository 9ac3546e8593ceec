package leap

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeBridge is the far end of a requester pipe. It decodes request lines
// and hands them to the configured responder.
type fakeBridge struct {
	conn    net.Conn
	scanner *bufio.Scanner
	writeMu sync.Mutex
}

func newRequesterPair(t *testing.T, opts ...RequesterOption) (*Requester, *fakeBridge) {
	t.Helper()
	client, server := net.Pipe()
	requester := NewRequester(NewConnection(client, zaptest.NewLogger(t)), zaptest.NewLogger(t), opts...)
	go func() {
		_ = requester.Run(context.Background())
	}()
	scanner := bufio.NewScanner(server)
	scanner.Buffer(make([]byte, 0, MaxMessageSize), MaxMessageSize)
	bridge := &fakeBridge{conn: server, scanner: scanner}
	t.Cleanup(func() {
		requester.Close()
		_ = server.Close()
	})
	return requester, bridge
}

func (b *fakeBridge) readMessage(t *testing.T) *Message {
	t.Helper()
	require.True(t, b.scanner.Scan(), "expected a request line")
	msg := &Message{}
	require.NoError(t, json.Unmarshal(b.scanner.Bytes(), msg))
	return msg
}

func (b *fakeBridge) send(t *testing.T, msg *Message) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_, err = b.conn.Write(append(data, '\r', '\n'))
	require.NoError(t, err)
}

func response(tag, url, status string, body string) *Message {
	code := ParseStatusCode(status)
	msg := &Message{
		CommuniqueType: ReadResponse,
		Header:         Header{ClientTag: tag, Url: url, StatusCode: &code},
	}
	if body != "" {
		msg.Body = json.RawMessage(body)
	}
	return msg
}

func TestRequestResponse(t *testing.T) {
	requester, bridge := newRequesterPair(t)

	type result struct {
		msg *Message
		err error
	}
	results := make(chan result, 1)
	go func() {
		msg, err := requester.Request(context.Background(), ReadRequest, "/device", nil)
		results <- result{msg, err}
	}()

	request := bridge.readMessage(t)
	assert.Equal(t, ReadRequest, request.CommuniqueType)
	assert.Equal(t, "/device", request.Header.Url)
	require.NotEmpty(t, request.Header.ClientTag)

	bridge.send(t, response(request.Header.ClientTag, "/device", "200 OK", `{"Devices":[]}`))

	res := <-results
	require.NoError(t, res.err)
	assert.NoError(t, res.msg.CheckStatus())
	assert.JSONEq(t, `{"Devices":[]}`, string(res.msg.Body))
}

func TestConcurrentRequestsMultiplexed(t *testing.T) {
	requester, bridge := newRequesterPair(t)

	results := make(chan string, 2)
	issue := func(url string) {
		msg, err := requester.Request(context.Background(), ReadRequest, url, nil)
		if err != nil {
			results <- err.Error()
			return
		}
		results <- msg.Header.Url
	}
	go issue("/area")
	go issue("/device")

	first := bridge.readMessage(t)
	second := bridge.readMessage(t)

	// Answer out of order; tags keep each caller paired with its own
	// response.
	bridge.send(t, response(second.Header.ClientTag, second.Header.Url, "200 OK", "{}"))
	bridge.send(t, response(first.Header.ClientTag, first.Header.Url, "200 OK", "{}"))

	seen := map[string]bool{<-results: true, <-results: true}
	assert.True(t, seen["/area"], "missing /area response")
	assert.True(t, seen["/device"], "missing /device response")
}

func TestRequestTimeout(t *testing.T) {
	requester, bridge := newRequesterPair(t, WithRequestTimeout(50*time.Millisecond))

	done := make(chan error, 1)
	go func() {
		_, err := requester.Request(context.Background(), ReadRequest, "/slow", nil)
		done <- err
	}()
	_ = bridge.readMessage(t)

	err := <-done
	terr := &TimeoutError{}
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "/slow", terr.Url)
}

func TestCloseResolvesPending(t *testing.T) {
	requester, bridge := newRequesterPair(t)

	done := make(chan error, 1)
	go func() {
		_, err := requester.Request(context.Background(), ReadRequest, "/device", nil)
		done <- err
	}()
	_ = bridge.readMessage(t)

	requester.Close()

	assert.ErrorIs(t, <-done, ErrConnectionClosed)
}

func TestCancelledRequestDropsLateResponse(t *testing.T) {
	requester, bridge := newRequesterPair(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := requester.Request(ctx, ReadRequest, "/device", nil)
		done <- err
	}()
	request := bridge.readMessage(t)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// The late response must be swallowed without disturbing the next
	// request.
	bridge.send(t, response(request.Header.ClientTag, "/device", "200 OK", "{}"))

	go func() {
		_, err := requester.Request(context.Background(), ReadRequest, "/area", nil)
		done <- err
	}()
	next := bridge.readMessage(t)
	bridge.send(t, response(next.Header.ClientTag, "/area", "200 OK", "{}"))
	assert.NoError(t, <-done)
}

func TestBridgeErrorDoesNotCloseConnection(t *testing.T) {
	requester, bridge := newRequesterPair(t)

	done := make(chan error, 1)
	go func() {
		msg, err := requester.Request(context.Background(), ReadRequest, "/forbidden", nil)
		if err == nil {
			err = msg.CheckStatus()
		}
		done <- err
	}()
	request := bridge.readMessage(t)
	bridge.send(t, response(request.Header.ClientTag, "/forbidden", "401 Unauthorized", "{}"))

	berr := &BridgeError{}
	require.ErrorAs(t, <-done, &berr)
	assert.Equal(t, 401, berr.Code.Code)

	go func() {
		_, err := requester.Request(context.Background(), ReadRequest, "/device", nil)
		done <- err
	}()
	next := bridge.readMessage(t)
	bridge.send(t, response(next.Header.ClientTag, "/device", "200 OK", "{}"))
	assert.NoError(t, <-done)
}

func TestUnsolicitedRouting(t *testing.T) {
	requester, bridge := newRequesterPair(t)

	var mu sync.Mutex
	var exact, prefixed, order []string
	requester.AddHandler("/zone/1/status", false, func(msg *Message) {
		mu.Lock()
		defer mu.Unlock()
		exact = append(exact, msg.Header.Url)
		order = append(order, string(msg.Body))
	})
	requester.AddHandler("/device/", true, func(msg *Message) {
		mu.Lock()
		defer mu.Unlock()
		prefixed = append(prefixed, msg.Header.Url)
	})

	send := func(url, body string) {
		bridge.send(t, &Message{
			CommuniqueType: ReadResponse,
			Header:         Header{Url: url},
			Body:           json.RawMessage(body),
		})
	}
	send("/zone/1/status", `{"n":1}`)
	send("/device/8/buttongroup/2/button/12/status/event", `{"n":2}`)
	send("/unknown/3", `{"n":3}`)
	send("/zone/1/status", `{"n":4}`)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(exact) == 2 && len(prefixed) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{`{"n":1}`, `{"n":4}`}, order, "delivery must follow arrival order")
	assert.Equal(t, []string{"/device/8/buttongroup/2/button/12/status/event"}, prefixed)
}

func TestSubscribeRegistersHandler(t *testing.T) {
	requester, bridge := newRequesterPair(t)

	received := make(chan string, 2)
	done := make(chan error, 1)
	go func() {
		msg, err := requester.Subscribe(context.Background(), "/occupancygroup/status", false, func(m *Message) {
			received <- string(m.Body)
		})
		if err == nil && msg != nil {
			received <- string(msg.Body)
		}
		done <- err
	}()

	request := bridge.readMessage(t)
	assert.Equal(t, SubscribeRequest, request.CommuniqueType)
	code := ParseStatusCode("200 OK")
	bridge.send(t, &Message{
		CommuniqueType: SubscribeResponse,
		Header:         Header{ClientTag: request.Header.ClientTag, Url: "/occupancygroup/status", StatusCode: &code},
		Body:           json.RawMessage(`{"initial":true}`),
	})
	require.NoError(t, <-done)
	assert.JSONEq(t, `{"initial":true}`, <-received)

	// A later notification on the same URL reaches the handler.
	bridge.send(t, &Message{
		CommuniqueType: ReadResponse,
		Header:         Header{Url: "/occupancygroup/status"},
		Body:           json.RawMessage(`{"initial":false}`),
	})
	select {
	case body := <-received:
		assert.JSONEq(t, `{"initial":false}`, body)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestSubscribeFailureDoesNotRegister(t *testing.T) {
	requester, bridge := newRequesterPair(t)

	done := make(chan error, 1)
	calls := make(chan struct{}, 1)
	go func() {
		_, err := requester.Subscribe(context.Background(), "/occupancygroup/status", false, func(*Message) {
			calls <- struct{}{}
		})
		done <- err
	}()
	request := bridge.readMessage(t)
	bridge.send(t, response(request.Header.ClientTag, "/occupancygroup/status", "404 Not Found", "{}"))

	berr := &BridgeError{}
	require.ErrorAs(t, <-done, &berr)

	bridge.send(t, &Message{
		CommuniqueType: ReadResponse,
		Header:         Header{Url: "/occupancygroup/status"},
		Body:           json.RawMessage("{}"),
	})
	select {
	case <-calls:
		t.Fatal("handler must not be registered after a failed subscription")
	case <-time.After(100 * time.Millisecond):
	}
}
