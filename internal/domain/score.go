package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Number is a float that also decodes from numeric strings. Anything that is
// not a number decodes to zero rather than failing the whole payload.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		return nil
	case strings.HasPrefix(s, `"`):
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			*n = 0
			return nil
		}
		*n = Number(f)
		return nil
	case s == "true" || s == "false" || strings.HasPrefix(s, "{") || strings.HasPrefix(s, "["):
		*n = 0
		return nil
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(f, 0) {
			*n = 0
			return nil
		}
		*n = Number(f)
		return nil
	}
}

// Stage is a discrete 1..7 severity index; zero means absent.
type Stage int

func (st *Stage) UnmarshalJSON(b []byte) error {
	var n Number
	if err := n.UnmarshalJSON(b); err != nil {
		return err
	}
	*st = Stage(math.Round(float64(n)))
	return nil
}

func (st Stage) Valid() bool {
	return st >= 1 && st <= 7
}

type FeatureScore struct {
	Name  string
	Value Number
}

// ScoreMap is a JSON object of feature → score that remembers key order, so
// chart axes follow the order the collaborator wrote them in. Any other JSON
// value decodes as an absent map.
type ScoreMap []FeatureScore

func (m *ScoreMap) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*m = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		*m = nil
		return nil
	}

	out := ScoreMap{}
	index := make(map[string]int)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("score map key must be a string")
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var value Number
		if err := value.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("score %q: %w", key, err)
		}

		if i, seen := index[key]; seen {
			out[i].Value = value
			continue
		}
		index[key] = len(out)
		out = append(out, FeatureScore{Name: key, Value: value})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*m = out
	return nil
}

func (m ScoreMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fs := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(fs.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(float64(fs.Value), 'f', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m ScoreMap) Keys() []string {
	keys := make([]string, len(m))
	for i, fs := range m {
		keys[i] = fs.Name
	}
	return keys
}

func (m ScoreMap) Value(name string) (float64, bool) {
	for _, fs := range m {
		if fs.Name == name {
			return float64(fs.Value), true
		}
	}
	return 0, false
}

// SameKeys reports whether both maps cover exactly the same feature names,
// regardless of order.
func (m ScoreMap) SameKeys(other ScoreMap) bool {
	if len(m) != len(other) {
		return false
	}
	names := make(map[string]struct{}, len(m))
	for _, fs := range m {
		names[fs.Name] = struct{}{}
	}
	for _, fs := range other {
		if _, ok := names[fs.Name]; !ok {
			return false
		}
	}
	return true
}
