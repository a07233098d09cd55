// Package hub serves the shared portfolio document that every device syncs
// against. The hub stores whatever full document a device last wrote and
// pushes it to all connected devices; arbitration happens on the devices.
package hub

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Envelope kinds pushed on the document stream.
const (
	// KindSnapshot carries a full document.
	KindSnapshot = "snapshot"
	// KindEmpty is sent on connect when no document has been written yet.
	KindEmpty = "empty"
)

// Envelope is one binary websocket frame. Document holds the JSON encoding of
// the portfolio document so its decimal fields keep their exact form.
type Envelope struct {
	Kind     string `msgpack:"kind"`
	Revision uint64 `msgpack:"revision"`
	Origin   string `msgpack:"origin"`
	Document []byte `msgpack:"document,omitempty"`
}

// EncodeEnvelope serializes an envelope to msgpack.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	data, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses a msgpack frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return env, nil
}

func snapshotEnvelope(rec *Record) Envelope {
	if rec == nil {
		return Envelope{Kind: KindEmpty}
	}
	return Envelope{
		Kind:     KindSnapshot,
		Revision: rec.Revision,
		Origin:   rec.Origin,
		Document: rec.Body,
	}
}
