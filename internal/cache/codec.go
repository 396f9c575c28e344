package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/shotapi/internal/capture"
)

const codecVersion = 1

// header is the first line of a durable record; the raw payload follows the newline.
type header struct {
	Version  int                 `json:"v"`
	Kind     capture.ContentKind `json:"kind"`
	StoredAt time.Time           `json:"stored_at"`
	TTLMs    int64               `json:"ttl_ms"`
	Size     int                 `json:"size"`
}

var errCorruptRecord = errors.New("corrupt cache record")

func encodeEntry(e Entry) ([]byte, error) {
	h, err := json.Marshal(header{
		Version:  codecVersion,
		Kind:     e.Kind,
		StoredAt: e.StoredAt.UTC(),
		TTLMs:    e.TTL.Milliseconds(),
		Size:     len(e.Payload),
	})
	if err != nil {
		return nil, fmt.Errorf("encode record header: %w", err)
	}
	buf := make([]byte, 0, len(h)+1+len(e.Payload))
	buf = append(buf, h...)
	buf = append(buf, '\n')
	buf = append(buf, e.Payload...)
	return buf, nil
}

func decodeEntry(key string, data []byte) (Entry, error) {
	line, payload, ok := bytes.Cut(data, []byte{'\n'})
	if !ok {
		return Entry{}, fmt.Errorf("%w: missing header", errCorruptRecord)
	}
	var h header
	if err := json.Unmarshal(line, &h); err != nil {
		return Entry{}, fmt.Errorf("%w: %w", errCorruptRecord, err)
	}
	if h.Version != codecVersion {
		return Entry{}, fmt.Errorf("%w: unsupported version %d", errCorruptRecord, h.Version)
	}
	if h.Size != len(payload) {
		return Entry{}, fmt.Errorf("%w: truncated payload (%d of %d bytes)", errCorruptRecord, len(payload), h.Size)
	}
	return Entry{
		Key:      key,
		Payload:  payload,
		Kind:     h.Kind,
		StoredAt: h.StoredAt,
		TTL:      time.Duration(h.TTLMs) * time.Millisecond,
	}, nil
}
