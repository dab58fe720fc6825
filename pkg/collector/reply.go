package collector

import (
	"encoding/json"
	"strings"
)

// Kind tags the outcome of one AI turn.
type Kind string

const (
	KindMessage  Kind = "message"
	KindComplete Kind = "complete"
	KindEscalate Kind = "escalate"
)

const defaultEscalationReason = "Escalado pela IA"

// Result is a parsed AI turn.
type Result struct {
	Kind Kind
	// Text is the reply for KindMessage and the escalation reason for
	// KindEscalate.
	Text string
	// Data is the collected record for KindComplete.
	Data map[string]any
}

// ParseReply interprets raw model output. A JSON object with a truthy
// "completo" completes the collection with "dados"; one with a truthy
// "escalar" escalates with "motivo". Anything else is a chat message.
func ParseReply(raw string) Result {
	text := strings.TrimSpace(raw)
	body := stripCodeFence(text)
	if strings.HasPrefix(body, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(body), &obj); err == nil {
			if truthy(obj["completo"]) {
				data, _ := obj["dados"].(map[string]any)
				if data == nil {
					data = map[string]any{}
				}
				return Result{Kind: KindComplete, Text: text, Data: data}
			}
			if truthy(obj["escalar"]) {
				reason, _ := obj["motivo"].(string)
				if strings.TrimSpace(reason) == "" {
					reason = defaultEscalationReason
				}
				return Result{Kind: KindEscalate, Text: reason}
			}
		}
	}
	return Result{Kind: KindMessage, Text: text}
}

// stripCodeFence unwraps ```json ... ``` blocks some models emit.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != "" && x != "0" && !strings.EqualFold(x, "false")
	case float64:
		return x != 0
	default:
		return false
	}
}
