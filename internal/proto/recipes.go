package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed marks payloads that are not valid envelopes.
	ErrMalformed = errors.New("malformed payload")
	// ErrUnknownEnvelope marks well-formed JSON of an unrecognised shape.
	ErrUnknownEnvelope = errors.New("unknown envelope")
)

const modeAll = "ALL"

type Recipe struct {
	ID           uint64 `json:"id"`
	Name         string `json:"name"`
	Ingredients  string `json:"ingredients"`
	Instructions string `json:"instructions"`
	Public       bool   `json:"public"`
}

// ListMode targets either every peer or a single peer. The zero value
// targets every peer.
//
// On the wire it is the string "ALL" or the object {"One":"<peer id>"}.
type ListMode struct {
	Peer string
}

func AllMode() ListMode { return ListMode{} }

func OneMode(peerID string) ListMode { return ListMode{Peer: peerID} }

func (m ListMode) IsAll() bool { return m.Peer == "" }

// Targets reports whether a node with id self should answer.
func (m ListMode) Targets(self string) bool {
	return m.IsAll() || m.Peer == self
}

func (m ListMode) String() string {
	if m.IsAll() {
		return modeAll
	}
	return "One(" + m.Peer + ")"
}

type oneMode struct {
	One string `json:"One"`
}

func (m ListMode) MarshalJSON() ([]byte, error) {
	if m.IsAll() {
		return json.Marshal(modeAll)
	}
	return json.Marshal(oneMode{One: m.Peer})
}

func (m *ListMode) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s != modeAll {
			return fmt.Errorf("%w: unknown list mode %q", ErrMalformed, s)
		}
		*m = AllMode()
		return nil
	}

	var one oneMode
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	if one.One == "" {
		return fmt.Errorf("%w: list mode without target", ErrMalformed)
	}
	*m = OneMode(one.One)
	return nil
}

// ListRequest asks peers selected by Mode to publish their recipes.
type ListRequest struct {
	Mode ListMode `json:"mode"`
}

// ListResponse carries public recipes to the peer named by Receiver.
type ListResponse struct {
	Mode     ListMode `json:"mode"`
	Data     []Recipe `json:"data"`
	Receiver string   `json:"receiver"`
}

// NewListResponse builds a response for receiver. Recipes that are not
// public are dropped.
func NewListResponse(mode ListMode, recipes []Recipe, receiver string) ListResponse {
	data := make([]Recipe, 0, len(recipes))
	for _, r := range recipes {
		if r.Public {
			data = append(data, r)
		}
	}
	return ListResponse{Mode: mode, Data: data, Receiver: receiver}
}

func (r ListRequest) Encode() ([]byte, error)  { return json.Marshal(r) }
func (r ListResponse) Encode() ([]byte, error) { return json.Marshal(r) }

type Kind int

const (
	KindRequest Kind = iota + 1
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	}
	return "unknown"
}

// Envelope is a decoded payload from the recipes topic. Exactly one of
// Request and Response is set, matching Kind.
type Envelope struct {
	Kind     Kind
	Request  *ListRequest
	Response *ListResponse
}

// Decode classifies payload by shape: an object with "data" and
// "receiver" is a response, one with "mode" is a request. Unknown fields
// are ignored.
func Decode(payload []byte) (Envelope, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	_, hasData := probe["data"]
	_, hasReceiver := probe["receiver"]
	_, hasMode := probe["mode"]

	switch {
	case hasData && hasReceiver:
		var resp ListResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			return Envelope{}, fmt.Errorf("%w: response: %v", ErrMalformed, err)
		}
		return Envelope{Kind: KindResponse, Response: &resp}, nil
	case hasMode:
		var req ListRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return Envelope{}, fmt.Errorf("%w: request: %v", ErrMalformed, err)
		}
		return Envelope{Kind: KindRequest, Request: &req}, nil
	}
	return Envelope{}, ErrUnknownEnvelope
}
