package runner

import "bytes"

const defaultCaptureLimit = 50 * 1024 * 1024

// CaptureBuffer collects process output up to a byte limit. Writes past
// the limit are discarded so a chatty solver cannot exhaust memory.
type CaptureBuffer struct {
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func NewCaptureBuffer(limit int64) *CaptureBuffer {
	if limit <= 0 {
		limit = defaultCaptureLimit
	}
	return &CaptureBuffer{limit: limit}
}

func (b *CaptureBuffer) Write(p []byte) (int, error) {
	n := len(p)
	room := b.limit - int64(b.buf.Len())
	if room <= 0 {
		b.truncated = true
		return n, nil
	}
	if int64(n) > room {
		b.truncated = true
		p = p[:room]
	}
	b.buf.Write(p)
	return n, nil
}

func (b *CaptureBuffer) String() string {
	return b.buf.String()
}

// Truncated reports whether output was dropped at the limit.
func (b *CaptureBuffer) Truncated() bool {
	return b.truncated
}
