package window

import (
	"strings"
	"sync"
)

// DefaultConsoleLines コンソールが保持する行数の既定値
const DefaultConsoleLines = 200

// Console は書き込まれたテキストの末尾の行を保持する io.Writer。
// VM の出力を画面に表示するために使う。書き込みと読み出しは別の
// ゴルーチンから行ってよい。
type Console struct {
	mu      sync.Mutex
	lines   []string
	partial string
	max     int
}

// NewConsole 最大 max 行を保持するコンソールを作成
func NewConsole(max int) *Console {
	if max <= 0 {
		max = DefaultConsoleLines
	}
	return &Console{max: max}
}

// Write io.Writer の実装。改行で区切られていない末尾は次の書き込みまで保留する
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	parts := strings.Split(c.partial+string(p), "\n")
	c.partial = parts[len(parts)-1]
	for _, line := range parts[:len(parts)-1] {
		c.lines = append(c.lines, strings.TrimRight(line, "\r"))
	}

	// 古い行を捨てる
	if over := len(c.lines) - c.max; over > 0 {
		c.lines = append(c.lines[:0:0], c.lines[over:]...)
	}
	return len(p), nil
}

// Tail 最後の n 行を返す（保留中の行は含まない）
func (c *Console) Tail(n int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 {
		return nil
	}
	start := len(c.lines) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, len(c.lines)-start)
	copy(out, c.lines[start:])
	return out
}

// Len 保持している行数を返す
func (c *Console) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}
