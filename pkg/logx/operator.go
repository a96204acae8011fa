package logx

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// operatorWriter is the zerolog sink that feeds the operator queue.
type operatorWriter struct{ svc *Service }

func (w *operatorWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *operatorWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	if s == nil {
		return len(p), nil
	}

	s.mu.Lock()
	chatID := s.chatID
	lim := s.limiter
	minLevel := s.minLevel
	s.mu.Unlock()

	if chatID == 0 || s.sender == nil || lim == nil || level < minLevel {
		return len(p), nil
	}
	if !lim.Allow() {
		s.opDropped.Add(1)
		return len(p), nil
	}
	if msg := formatOperatorLine(p); msg != "" {
		s.enqueue(operatorItem{chatID: chatID, msg: msg})
	}
	return len(p), nil
}

// Operator message limits, in runes. The whole message stays under the
// Bot API cap so it is never split.
const (
	opMaxMessage = 3500
	opMaxValue   = 600
	opMaxStack   = 900
)

// formatOperatorLine renders one zerolog JSON line as a short chat message:
// "[LEVEL] comp: message" followed by sorted "- key=value" lines. The
// timestamp and caller are dropped.
func formatOperatorLine(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return truncate(raw, opMaxMessage)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	if comp, _ := m["comp"].(string); comp != "" {
		b.WriteString(comp + ": ")
	}
	msg, _ := m["message"].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message", "comp", zerolog.CallerFieldName:
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fmt.Sprint(m[k])
		if k == "stack" {
			b.WriteString("\n- stack=\n" + truncate(v, opMaxStack))
			continue
		}
		fmt.Fprintf(&b, "\n- %s=%s", k, truncate(v, opMaxValue))
	}
	return truncate(b.String(), opMaxMessage)
}

// truncate cuts s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	rs := []rune(s)
	if n <= 0 || len(rs) <= n {
		return s
	}
	if n < 10 {
		return string(rs[:n])
	}
	return string(rs[:n-3]) + "..."
}
