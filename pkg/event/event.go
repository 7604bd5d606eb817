package event

import (
	"encoding/json"
)

// JSON is a named event with string attributes. Map keys are encoded in
// sorted order, so equal events always serialize to the same bytes.
type JSON struct {
	Name    string            `json:"name"`
	Payload map[string]string `json:"payload,omitempty"`
}

func NewJSON(name string, payload map[string]string) JSON {
	return JSON{
		Name:    name,
		Payload: payload,
	}
}

func (e JSON) Serialize() ([]byte, error) {
	return json.Marshal(e)
}
