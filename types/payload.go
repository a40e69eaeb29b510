package types

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

const (
	ParamAPIKey    = "apiKey"
	ParamTimestamp = "timestamp"
	ParamSignature = "signature"
)

// Request is the outbound wire envelope.
type Request struct {
	ID     string         `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

// Payload is the live request a session sends on connect and re-sends on
// every refresh tick. The timestamp and signature are held apart from the
// caller's params and always change together under one lock, so a reader
// never observes a timestamp paired with a stale signature.
type Payload struct {
	id     string
	method string

	mu        sync.RWMutex
	params    map[string]any
	timestamp int64
	signature string
	// hasTimestamp is set when the caller supplied a timestamp of its own.
	hasTimestamp bool
}

func NewPayload(method string, params map[string]any) *Payload {
	return NewPayloadWithID(uuid.NewString(), method, params)
}

func NewPayloadWithID(id, method string, params map[string]any) *Payload {
	p := &Payload{
		id:     id,
		method: method,
		params: make(map[string]any, len(params)),
	}
	for k, v := range params {
		switch k {
		case ParamTimestamp:
			if ts, ok := toInt64(v); ok {
				p.timestamp = ts
				p.hasTimestamp = true
				continue
			}
			p.params[k] = v
		case ParamSignature:
			if sig, ok := v.(string); ok {
				p.signature = sig
				continue
			}
			p.params[k] = v
		default:
			p.params[k] = v
		}
	}
	return p
}

func (p *Payload) ID() string {
	return p.id
}

func (p *Payload) Method() string {
	return p.method
}

func (p *Payload) Param(key string) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.params[key]
	return v, ok
}

// APIKey reports the apiKey parameter, if the caller set one.
func (p *Payload) APIKey() (string, bool) {
	v, ok := p.Param(ParamAPIKey)
	if !ok {
		return "", false
	}
	key, _ := v.(string)
	return key, true
}

// SetAuth replaces the timestamp/signature pair.
func (p *Payload) SetAuth(timestamp int64, signature string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timestamp = timestamp
	p.signature = signature
}

func (p *Payload) Auth() (int64, string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.timestamp, p.signature
}

// Request returns a copy of the envelope as it would be sent right now.
func (p *Payload) Request() Request {
	p.mu.RLock()
	defer p.mu.RUnlock()

	params := make(map[string]any, len(p.params)+2)
	for k, v := range p.params {
		params[k] = v
	}
	if p.signature != "" || p.hasTimestamp {
		params[ParamTimestamp] = p.timestamp
	}
	if p.signature != "" {
		params[ParamSignature] = p.signature
	}

	return Request{
		ID:     p.id,
		Method: p.method,
		Params: params,
	}
}

func (p *Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Request())
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
