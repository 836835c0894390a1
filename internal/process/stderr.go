package process

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

const defaultTailSize = 4 << 10

// tailBuffer keeps the last max bytes written to it. file, when set, is the
// stage log that receives the full stream next to it.
type tailBuffer struct {
	mu   sync.Mutex
	max  int
	buf  []byte
	file *os.File
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = defaultTailSize
	}
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

// FormatBytes renders b with IEC units.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
