package conversation

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// ErrCorrupt is returned when a persisted collection cannot be decoded.
// Callers are expected to stop rather than start over with an empty collection.
var ErrCorrupt = errors.New("persisted conversation collection is corrupt")

// collectionSchema is what we accept on load. It is looser than the schema
// printed by `chatterbox schema` so that blobs written by older clients still
// load: createdAt and isError are optional, and ids may be integers (millisecond
// timestamps).
const collectionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "title", "messages"],
    "properties": {
      "id": {"type": ["string", "integer"], "minLength": 1},
      "title": {"type": "string"},
      "createdAt": {"type": "string"},
      "messages": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["id", "role", "content", "timestamp"],
          "properties": {
            "id": {"type": ["string", "integer"], "minLength": 1},
            "role": {"enum": ["user", "assistant"]},
            "content": {"type": "string"},
            "timestamp": {"type": "string"},
            "isError": {"type": "boolean"}
          }
        }
      }
    }
  }
}`

var compiledCollectionSchema *gojsonschema.Schema

func init() {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(collectionSchema))
	if err != nil {
		panic(err)
	}
	compiledCollectionSchema = s
}

// EncodeCollection serializes conversations in the given order as a JSON array.
func EncodeCollection(conversations []*Conversation) ([]byte, error) {
	out := make([]*Conversation, 0, len(conversations))
	for _, c := range conversations {
		if c.Messages == nil {
			c_ := *c
			c_.Messages = []*Message{}
			c = &c_
		}
		out = append(out, c)
	}
	return json.Marshal(out)
}

// DecodeCollection validates and parses a blob written by EncodeCollection.
// Any structural problem, including duplicate ids, is reported as ErrCorrupt.
func DecodeCollection(b []byte) ([]*Conversation, error) {
	res, err := compiledCollectionSchema.Validate(gojsonschema.NewBytesLoader(b))
	if err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "invalid json: %v", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, errors.Wrapf(ErrCorrupt, "schema violation: %s", strings.Join(msgs, "; "))
	}

	var ret []*Conversation
	if err := json.Unmarshal(b, &ret); err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "could not decode: %v", err)
	}

	seen := make(map[string]bool, len(ret))
	for _, c := range ret {
		if seen[c.ID] {
			return nil, errors.Wrapf(ErrCorrupt, "duplicate conversation id %q", c.ID)
		}
		seen[c.ID] = true
		if c.Messages == nil {
			c.Messages = []*Message{}
		}
	}

	return ret, nil
}

// storedID decodes an id written either as a JSON string or as a JSON number.
// Numbers are kept in their literal form, so 1700000000000 becomes "1700000000000".
type storedID string

func (id *storedID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = storedID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Wrap(err, "id is neither a string nor a number")
	}
	*id = storedID(n.String())
	return nil
}

func (c *Conversation) UnmarshalJSON(b []byte) error {
	type plain Conversation
	aux := struct {
		ID storedID `json:"id"`
		*plain
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	c.ID = string(aux.ID)
	return nil
}

func (m *Message) UnmarshalJSON(b []byte) error {
	type plain Message
	aux := struct {
		ID storedID `json:"id"`
		*plain
	}{plain: (*plain)(m)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	m.ID = string(aux.ID)
	return nil
}
