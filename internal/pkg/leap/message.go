package leap

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CommuniqueType identifies the kind of LEAP message.
type CommuniqueType string

func (ct CommuniqueType) String() string {
	return string(ct)
}

const (
	ReadRequest        CommuniqueType = "ReadRequest"
	CreateRequest      CommuniqueType = "CreateRequest"
	UpdateRequest      CommuniqueType = "UpdateRequest"
	SubscribeRequest   CommuniqueType = "SubscribeRequest"
	UnsubscribeRequest CommuniqueType = "UnsubscribeRequest"
	ReadResponse       CommuniqueType = "ReadResponse"
	CreateResponse     CommuniqueType = "CreateResponse"
	UpdateResponse     CommuniqueType = "UpdateResponse"
	SubscribeResponse  CommuniqueType = "SubscribeResponse"
	ExceptionResponse  CommuniqueType = "ExceptionResponse"
)

// StatusCode is a LEAP header status such as "200 OK" or "401 Unauthorized".
// The numeric part is optional on some firmwares.
type StatusCode struct {
	Code    int
	Message string
}

// ParseStatusCode splits a raw status string into its code and message parts.
// A missing or non-numeric code yields Code == 0.
func ParseStatusCode(raw string) StatusCode {
	code, msg, found := strings.Cut(raw, " ")
	if !found {
		code = raw
		msg = ""
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return StatusCode{Code: 0, Message: raw}
	}
	return StatusCode{Code: n, Message: msg}
}

// IsSuccessful reports whether the code is in the range [200, 300).
func (s StatusCode) IsSuccessful() bool {
	return s.Code >= 200 && s.Code < 300
}

func (s StatusCode) String() string {
	if s.Message == "" {
		return strconv.Itoa(s.Code)
	}
	return fmt.Sprintf("%d %s", s.Code, s.Message)
}

func (s StatusCode) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *StatusCode) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseStatusCode(raw)
	return nil
}

// Header is the LEAP message envelope header. Requests carry ClientTag and
// Url; responses echo the tag and add StatusCode and MessageBodyType.
type Header struct {
	ClientTag       string      `json:"ClientTag,omitempty"`
	Url             string      `json:"Url,omitempty"`
	StatusCode      *StatusCode `json:"StatusCode,omitempty"`
	MessageBodyType string      `json:"MessageBodyType,omitempty"`
}

// Message is a single LEAP communique in either direction.
type Message struct {
	CommuniqueType CommuniqueType  `json:"CommuniqueType"`
	Header         Header          `json:"Header"`
	Body           json.RawMessage `json:"Body,omitempty"`
}

// DecodeBody unmarshals the message body into v.
func (m *Message) DecodeBody(v any) error {
	if len(m.Body) == 0 {
		return fmt.Errorf("leap: message for %s has no body", m.Header.Url)
	}
	return json.Unmarshal(m.Body, v)
}

// CheckStatus returns a *BridgeError when the header status is missing or
// outside the 2xx range, nil otherwise.
func (m *Message) CheckStatus() error {
	status := m.Header.StatusCode
	if status == nil || !status.IsSuccessful() {
		berr := &BridgeError{Url: m.Header.Url}
		if status != nil {
			berr.Code = *status
		}
		return berr
	}
	return nil
}
