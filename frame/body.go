package frame

// decodeBody recovers a typed body from Frame.Body, which is `any` because a single
// Frame value serves every Type. In-process (wire.LocalBus) Body is already the
// concrete struct a sender assigned; across anything that serializes (Marshal/
// Unmarshal, a recorded fixture) it arrives as map[string]any. Both paths are handled
// here so stream.Dispatcher and friends don't care which transport produced the frame.
func decodeBody[T any](body any) (*T, bool) {
	switch v := body.(type) {
	case T:
		return &v, true
	case *T:
		return v, true
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		var out T
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, false
		}
		return &out, true
	default:
		return nil, false
	}
}

func (f *Frame) StreamStart() (*StreamStartBody, bool) { return decodeBody[StreamStartBody](f.Body) }
func (f *Frame) StreamData() (*StreamDataBody, bool) { return decodeBody[StreamDataBody](f.Body) }
func (f *Frame) StreamEnd() (*StreamEndBody, bool) { return decodeBody[StreamEndBody](f.Body) }
func (f *Frame) StreamErr() (*StreamErrorBody, bool) { return decodeBody[StreamErrorBody](f.Body) }
func (f *Frame) StreamCancelMsg() (*StreamCancelBody, bool) {
	return decodeBody[StreamCancelBody](f.Body)
}
func (f *Frame) Pull() (*PullBody, bool) { return decodeBody[PullBody](f.Body) }

// StreamIDOf extracts the streamId carried by a stream_* frame's body, regardless of
// its specific Type, or from the top-level StreamID field on a request frame whose
// own body is sent as a stream.
func StreamIDOf(f *Frame) (string, bool) {
	if f.StreamID != "" {
		return f.StreamID, true
	}
	switch f.Type {
	case StreamStart:
		if b, ok := f.StreamStart(); ok {
			return b.StreamID, true
		}
	case StreamData:
		if b, ok := f.StreamData(); ok {
			return b.StreamID, true
		}
	case StreamEnd:
		if b, ok := f.StreamEnd(); ok {
			return b.StreamID, true
		}
	case StreamError:
		if b, ok := f.StreamErr(); ok {
			return b.StreamID, true
		}
	case StreamCancel:
		if b, ok := f.StreamCancelMsg(); ok {
			return b.StreamID, true
		}
	}
	if b, ok := f.Pull(); ok {
		return b.StreamID, true
	}
	return "", false
}
