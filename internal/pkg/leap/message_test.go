package leap

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatusCode(t *testing.T) {
	tests := []struct {
		raw        string
		code       int
		message    string
		successful bool
	}{
		{"200 OK", 200, "OK", true},
		{"201 Created", 201, "Created", true},
		{"204", 204, "", true},
		{"401 Unauthorized", 401, "Unauthorized", false},
		{"502 Bad Gateway", 502, "Bad Gateway", false},
		{"NoCode", 0, "NoCode", false},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			status := ParseStatusCode(tc.raw)
			assert.Equal(t, tc.code, status.Code)
			assert.Equal(t, tc.message, status.Message)
			assert.Equal(t, tc.successful, status.IsSuccessful())
		})
	}
}

func TestMessageRoundTrip(t *testing.T) {
	raw := []byte(`{"CommuniqueType":"CreateRequest",` +
		`"Header":{"ClientTag":"1","Url":"/zone/1/commandprocessor"},` +
		`"Body":{"Command":{"CommandType":"GoToLevel","Parameter":[{"Type":"Level","Value":100}]}}}`)

	msg := &Message{}
	require.NoError(t, json.Unmarshal(raw, msg))
	assert.Equal(t, CreateRequest, msg.CommuniqueType)
	assert.Equal(t, "1", msg.Header.ClientTag)
	assert.Equal(t, "/zone/1/commandprocessor", msg.Header.Url)

	encoded, err := json.Marshal(msg)
	require.NoError(t, err)

	again := &Message{}
	require.NoError(t, json.Unmarshal(encoded, again))
	reencoded, err := json.Marshal(again)
	require.NoError(t, err)
	assert.JSONEq(t, string(encoded), string(reencoded))
	assert.JSONEq(t, string(raw), string(encoded))
}

func TestStatusCodeJSON(t *testing.T) {
	raw := []byte(`{"CommuniqueType":"ReadResponse","Header":{"StatusCode":"200 OK","Url":"/device"}}`)
	msg := &Message{}
	require.NoError(t, json.Unmarshal(raw, msg))
	require.NotNil(t, msg.Header.StatusCode)
	assert.Equal(t, 200, msg.Header.StatusCode.Code)
	assert.NoError(t, msg.CheckStatus())

	encoded, err := json.Marshal(msg.Header.StatusCode)
	require.NoError(t, err)
	assert.Equal(t, `"200 OK"`, string(encoded))
}

func TestCheckStatus(t *testing.T) {
	t.Run("missing status", func(t *testing.T) {
		msg := &Message{Header: Header{Url: "/device"}}
		err := msg.CheckStatus()
		berr := &BridgeError{}
		require.ErrorAs(t, err, &berr)
		assert.Equal(t, "/device", berr.Url)
	})

	t.Run("error status", func(t *testing.T) {
		status := ParseStatusCode("401 Unauthorized")
		msg := &Message{Header: Header{Url: "/area", StatusCode: &status}}
		err := msg.CheckStatus()
		berr := &BridgeError{}
		require.ErrorAs(t, err, &berr)
		assert.Equal(t, 401, berr.Code.Code)
	})
}
