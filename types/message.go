package types

import (
	"encoding/json"
	"fmt"
)

// Message is one decoded inbound frame. Its interpretation is left to the
// handler; the helpers below cover the fields every ws-api reply carries.
type Message map[string]any

func (m Message) ID() string {
	id, _ := m["id"].(string)
	return id
}

func (m Message) Status() int {
	status, _ := m["status"].(float64)
	return int(status)
}

func (m Message) Result() (json.RawMessage, bool) {
	result, ok := m["result"]
	if !ok {
		return nil, false
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, false
	}
	return raw, true
}

// Err returns the ws-api error object as an error, or nil when the reply
// carries none.
func (m Message) Err() error {
	obj, ok := m["error"].(map[string]any)
	if !ok {
		return nil
	}
	code, _ := obj["code"].(float64)
	msg, _ := obj["msg"].(string)
	return fmt.Errorf("ws-api error (code: %d, message: %s)", int(code), msg)
}
