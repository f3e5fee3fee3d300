package stream

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/winbridge/winbridge/frame"
)

// FilePayload is the normalized shape Outbox.SendFile accepts in place of a browser
// File/Blob: raw bytes plus the metadata a receiver needs to reconstruct the file.
type FilePayload struct {
	Name      string
	MimeType  string
	Bytes     []byte
	ChunkSize int // 0 means send as a single shot
}

// NewFileWritable builds a Writable that frames payload as base64 stream_data chunks,
// using opts for Chunked/AutoResolve/Metadata but overriding Kind, FileName and
// MimeType from the payload itself.
func NewFileWritable(payload *FilePayload, opts WritableOptions) *Writable {
	opts.Kind = "file"
	opts.FileName = payload.Name
	opts.MimeType = payload.MimeType
	opts.Size = int64(len(payload.Bytes))
	if opts.Metadata == nil {
		opts.Metadata = map[string]any{}
	}
	opts.Metadata["fileName"] = payload.Name
	opts.Metadata["mimeType"] = payload.MimeType
	opts.Metadata["size"] = opts.Size

	if !opts.Chunked || payload.ChunkSize <= 0 {
		opts.Producer = ProducerFunc(func(_ context.Context) (Chunk, error) {
			return Chunk{Data: base64.StdEncoding.EncodeToString(payload.Bytes), Done: true}, nil
		})
		return NewWritable(opts)
	}

	chunkSize := payload.ChunkSize
	offset := 0
	opts.Producer = ProducerFunc(func(_ context.Context) (Chunk, error) {
		if offset >= len(payload.Bytes) {
			return Chunk{Done: true}, nil
		}
		end := offset + chunkSize
		if end > len(payload.Bytes) {
			end = len(payload.Bytes)
		}
		piece := payload.Bytes[offset:end]
		offset = end
		done := offset >= len(payload.Bytes)
		return Chunk{Data: base64.StdEncoding.EncodeToString(piece), Done: done}, nil
	})
	return NewWritable(opts)
}

// FileResult is what a file-kind stream reassembles into once fully received:
// metadata recovered from the producer's StreamStartBody.Metadata plus the
// concatenated, base64-decoded bytes of every chunk.
type FileResult struct {
	Name     string
	MimeType string
	Bytes    []byte
}

// ReceiveFile binds a Readable to d for streamID, base64-decoding and concatenating
// every stream_data chunk, and calls onDone exactly once with the reassembled
// FileResult (or an error, on stream_error/stream_cancel). metadata is the
// StreamStartBody.Metadata a NewFileWritable sender stamped with fileName/mimeType.
func ReceiveFile(d *Dispatcher, streamID string, chunked bool, credit int, metadata map[string]any, send func(f *frame.Frame) bool, onDone func(*FileResult, error)) *Readable {
	var buf bytes.Buffer
	var once sync.Once
	finish := func(res *FileResult, err error) {
		once.Do(func() { onDone(res, err) })
	}
	rd := NewReadable(ReadableOptions{
		Credit: credit,
		OnData: func(data any, done bool) {
			s, ok := data.(string)
			if !ok {
				return
			}
			decoded, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				finish(nil, fmt.Errorf("file stream %s: invalid base64 chunk: %w", streamID, err))
				return
			}
			buf.Write(decoded)
		},
		OnEnd: func() {
			finish(&FileResult{
				Name:     metaString(metadata, "fileName"),
				MimeType: metaString(metadata, "mimeType"),
				Bytes:    buf.Bytes(),
			}, nil)
		},
		OnError: func(message string) {
			finish(nil, fmt.Errorf("file stream %s failed: %s", streamID, message))
		},
		OnCancel: func(reason string) {
			finish(nil, fmt.Errorf("file stream %s cancelled: %s", streamID, reason))
		},
	})
	rd.Bind(d, streamID, chunked, send)
	return rd
}

func metaString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
