package frame

import jsoniter "github.com/json-iterator/go"

// json is the shared codec instance for marshaling/unmarshaling frames, configured to
// match encoding/json's behavior byte-for-byte (field order, escaping) so wire captures
// in tests read the same regardless of which codec produced them.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Marshal encodes a Frame exactly as it would cross postMessage (JSON-structured-clone
// shaped: postMessage isn't literally JSON, but every field winbridge puts on the wire
// is JSON-serializable, and jsoniter gives a concrete byte encoding useful for transports
// that aren't in-process, logging, and golden-file tests).
func Marshal(f *Frame) ([]byte, error) {
	return json.Marshal(f)
}

// Unmarshal decodes bytes produced by Marshal. Callers that receive a wire.Message
// in-process (wire.LocalBus) never need this -- the Frame value crosses as-is -- but any
// transport that serializes (a real postMessage bridge, a debug log, a recorded fixture)
// does.
func Unmarshal(data []byte, f *Frame) error {
	return json.Unmarshal(data, f)
}

// ToWireMessage converts a Frame into the wire.Message shape Channel.Send hands to an
// Endpoint. In-process this is the Frame itself (no serialization boundary); Channel
// treats it opaquely.
func ToWireMessage(f *Frame) any { return f }

// FromWireMessage recovers a *Frame from whatever arrived on an Endpoint. It accepts
// either a live *Frame (the in-process fast path) or a raw JSON payload (bytes or
// string), so the same Channel code works unchanged against a LocalBus and against a
// future real cross-process transport.
func FromWireMessage(msg any) (*Frame, bool) {
	switch v := msg.(type) {
	case *Frame:
		return v, true
	case Frame:
		return &v, true
	case []byte:
		var f Frame
		if err := Unmarshal(v, &f); err != nil {
			return nil, false
		}
		return &f, true
	case string:
		var f Frame
		if err := Unmarshal([]byte(v), &f); err != nil {
			return nil, false
		}
		return &f, true
	default:
		return nil, false
	}
}
