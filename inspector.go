package evoke

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned when a payload offered for inspection is not
// valid JSON.
var ErrInvalidJSON = errors.New("invalid JSON")

// Inspector examines a raw payload and returns a View for field queries.
// The engine uses it for middleware payload filters; transports use it to
// detect envelope formats before parsing them.
type Inspector interface {
	Inspect(raw []byte) (View, error)
}

// View provides cheap field access over a raw payload without a full
// unmarshal.
type View interface {
	// HasField reports whether the path exists in the payload.
	HasField(path string) bool

	// GetString returns the string value at path, or false if absent or not
	// a string.
	GetString(path string) (string, bool)

	// GetBytes returns the raw bytes at path, or false if absent. For JSON
	// this is the raw JSON value, including quotes for strings.
	GetBytes(path string) ([]byte, bool)
}

// JSONInspector returns an Inspector backed by gjson path queries.
func JSONInspector() Inspector {
	return jsonInspector{}
}

type jsonInspector struct{}

func (jsonInspector) Inspect(raw []byte) (View, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidJSON
	}
	return jsonView{raw: raw}, nil
}

type jsonView struct {
	raw []byte
}

func (v jsonView) HasField(path string) bool {
	return gjson.GetBytes(v.raw, path).Exists()
}

func (v jsonView) GetString(path string) (string, bool) {
	r := gjson.GetBytes(v.raw, path)
	if !r.Exists() || r.Type != gjson.String {
		return "", false
	}
	return r.String(), true
}

func (v jsonView) GetBytes(path string) ([]byte, bool) {
	r := gjson.GetBytes(v.raw, path)
	if !r.Exists() {
		return nil, false
	}
	return []byte(r.Raw), true
}
