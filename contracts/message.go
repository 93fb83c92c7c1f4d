package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// ProviderState is a named precondition the provider must establish before
// producing a message
type ProviderState struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// Message describes one message interaction recorded by a consumer
type Message struct {
	Description    string                 `json:"description"`
	Contents       json.RawMessage        `json:"contents,omitempty"`
	ProviderStates []ProviderState        `json:"providerStates,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// StateNames returns the provider state names in declaration order
func (m *Message) StateNames() []string {
	names := make([]string, 0, len(m.ProviderStates))
	for _, state := range m.ProviderStates {
		names = append(names, state.Name)
	}
	return names
}

// Validate checks that the message can be used to look up a producer
func (m *Message) Validate() error {
	if m.Description == "" {
		return fmt.Errorf("%w: description is required", ErrMalformedRequest)
	}
	for i, state := range m.ProviderStates {
		if state.Name == "" {
			return fmt.Errorf("%w: providerStates[%d] has no name", ErrMalformedRequest, i)
		}
	}
	if len(m.Contents) > 0 && !json.Valid(m.Contents) {
		return fmt.Errorf("%w: contents is not valid JSON", ErrMalformedRequest)
	}
	return nil
}

// ParseMessage decodes and validates a message descriptor
func ParseMessage(data []byte) (*Message, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedRequest)
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	var msg Message
	if err := decoder.Decode(&msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if _, err := decoder.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected data after message", ErrMalformedRequest)
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ProducedMessage is returned by producers that attach metadata to the
// content they generate
type ProducedMessage struct {
	Contents interface{}            `json:"contents"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
