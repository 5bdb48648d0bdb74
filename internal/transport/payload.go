package transport

import (
	"encoding/json"
	"fmt"
)

// Payload is the DataMap-style KV wire format spec §6 describes as
// "semantically equivalent to a JSON object" — callers build and
// inspect it as a plain map and Encode/Decode translate it to and
// from the bytes a Transport actually carries.
type Payload map[string]interface{}

func Encode(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

func Decode(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("transport: decode payload: %w", err)
	}
	return p, nil
}

func (p Payload) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (p Payload) Bool(key string) (bool, bool) {
	v, ok := p[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Int64 accepts any of the numeric shapes a Payload field might carry:
// a JSON number decoded as float64, a json.Number, or a plain Go
// integer placed directly into the map by code that built a Payload
// in-process without going through Encode/Decode.
func (p Payload) Int64(key string) (int64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case int64:
		return n, true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

func (p Payload) Int(key string) (int, bool) {
	i, ok := p.Int64(key)
	return int(i), ok
}

// AckPayload builds the {opId, success, error?, timestamp} shape spec
// §6 defines for ack messages.
func AckPayload(opID string, success bool, errMsg string, timestamp int64) Payload {
	p := Payload{
		"opId":      opID,
		"success":   success,
		"timestamp": timestamp,
	}
	if errMsg != "" {
		p["error"] = errMsg
	}
	return p
}

// SyncRequestPayload builds the {timestamp, nonce} shape spec §6 and
// §4.7 describe for an explicit "ask peer for a fresh snapshot" call.
func SyncRequestPayload(timestamp int64, nonce string) Payload {
	return Payload{"timestamp": timestamp, "nonce": nonce}
}
