package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Event is one structured record flowing through the pipeline.
// Values are nested maps, scalars, time.Time or []interface{} lists.
type Event map[string]interface{}

// Metadata travels beside an Event during one dispatch and carries
// routing hints (destination index, doc type, plugin trail).
type Metadata map[string]interface{}

// Well-known metadata keys.
const (
	MetaIndex   = "index"
	MetaDocType = "doc_type"
	MetaPlugins = "plugins"
)

// DefaultIndex is the destination used when no plugin routes elsewhere.
const DefaultIndex = "events"

// ErrNotObject is returned by Decode for payloads that are not a JSON object.
var ErrNotObject = errors.New("event: payload is not a JSON object")

// NewMetadata returns the fresh per-dispatch metadata.
func NewMetadata() Metadata {
	return Metadata{
		MetaIndex:   DefaultIndex,
		MetaDocType: "event",
	}
}

// Decode parses a JSON object into an Event. Numbers are kept as json.Number
// so integer identifiers survive the round trip.
func Decode(data []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, ErrNotObject
	}
	return Event(m), nil
}

// ID returns the event identifier, or "" when the event carries none.
func (e Event) ID() string {
	for _, p := range []string{"id", "_id", "details.eventid"} {
		if v, ok := e.Lookup(p); ok {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// EnsureID returns the event identifier, assigning a random UUID to "id"
// when the event has none.
func (e Event) EnsureID() string {
	if id := e.ID(); id != "" {
		return id
	}
	id := uuid.New().String()
	e["id"] = id
	return id
}

// Clone returns a deep copy of e. Maps and lists are copied; scalars are shared.
func (e Event) Clone() Event {
	if e == nil {
		return nil
	}
	return Event(cloneMap(e))
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	return Metadata(cloneMap(m))
}

// AppendPlugin records that plugin applied successfully to the event.
func (m Metadata) AppendPlugin(name string) {
	trail, _ := m[MetaPlugins].([]string)
	m[MetaPlugins] = append(trail, name)
}

// Plugins returns the trail of plugins that applied.
func (m Metadata) Plugins() []string {
	trail, _ := m[MetaPlugins].([]string)
	return trail
}

// Index returns the destination index, falling back to DefaultIndex.
func (m Metadata) Index() string {
	if s, ok := m[MetaIndex].(string); ok && s != "" {
		return s
	}
	return DefaultIndex
}

// CloneValue deep-copies a single field value.
func CloneValue(v interface{}) interface{} { return cloneValue(v) }

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneMap(t)
	case Event:
		return Event(cloneMap(t))
	case Metadata:
		return Metadata(cloneMap(t))
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	}
	return v
}
