package message

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Bodypart tags understood by the host.
const (
	BodypartHead          = "head"
	BodypartHandLeft      = "hand_left"
	BodypartLowerarmLeft  = "lowerarm_left"
	BodypartUpperarmLeft  = "upperarm_left"
	BodypartBody          = "body"
	BodypartLowerarmRight = "lowerarm_right"
	BodypartUpperarmRight = "upperarm_right"
	BodypartHandRight     = "hand_right"
	BodypartLowerlegLeft  = "lowerleg_left"
	BodypartUpperlegLeft  = "upperleg_left"
	BodypartFootLeft      = "foot_left"
	BodypartLowerlegRight = "lowerleg_right"
	BodypartUpperlegRight = "upperleg_right"
	BodypartFootRight     = "foot_right"
	BodypartUpperbody     = "upperbody"
	BodypartLowerbody     = "lowerbody"
	BodypartKatana        = "katana"
	BodypartUntagged      = "untagged"
)

var bodyparts = map[string]bool{
	BodypartHead: true, BodypartHandLeft: true, BodypartLowerarmLeft: true,
	BodypartUpperarmLeft: true, BodypartBody: true, BodypartLowerarmRight: true,
	BodypartUpperarmRight: true, BodypartHandRight: true, BodypartLowerlegLeft: true,
	BodypartUpperlegLeft: true, BodypartFootLeft: true, BodypartLowerlegRight: true,
	BodypartUpperlegRight: true, BodypartFootRight: true, BodypartUpperbody: true,
	BodypartLowerbody: true, BodypartKatana: true, BodypartUntagged: true,
}

func ValidBodypart(tag string) bool { return bodyparts[tag] }

// Message is one entry of the JSON array a node sends to the host.
type Message struct {
	Player   string `json:"player,omitempty"`
	Bodypart string `json:"bodypart"`
	Type     string `json:"type"`
	Value    string `json:"value"`
}

// FormatValues renders values as "[a, b, c, d]" with 4 decimals.
func FormatValues(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'f', 4, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// New builds a message whose value lists values in order. For orientation
// that order is (w, x, y, z).
func New(bodypart, typ string, values []float64) Message {
	return Message{Bodypart: bodypart, Type: typ, Value: FormatValues(values)}
}

// ParseValues is the inverse of FormatValues.
func ParseValues(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("message: value %q is not a bracketed list", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return nil, nil
	}
	fields := strings.Split(body, ",")
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("message: value %q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}

// Encode renders msgs as the JSON array sent on the wire.
func Encode(msgs []Message) ([]byte, error) {
	if msgs == nil {
		msgs = []Message{}
	}
	return json.Marshal(msgs)
}

func Decode(b []byte) ([]Message, error) {
	var msgs []Message
	if err := json.Unmarshal(b, &msgs); err != nil {
		return nil, fmt.Errorf("message: decode: %w", err)
	}
	return msgs, nil
}

// ChangeGate drops readings in which no value moved more than Threshold
// since the last reading it let through. A zero Threshold lets every
// reading through.
type ChangeGate struct {
	Threshold float64
	last      []float64
}

func (g *ChangeGate) Allow(values []float64) bool {
	if g.Threshold <= 0 || len(g.last) != len(values) {
		g.last = append(g.last[:0], values...)
		return true
	}
	for i, v := range values {
		if math.Abs(v-g.last[i]) > g.Threshold {
			g.last = append(g.last[:0], values...)
			return true
		}
	}
	return false
}

// Reset forgets the last reading so the next one is let through.
func (g *ChangeGate) Reset() { g.last = g.last[:0] }
