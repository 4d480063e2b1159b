package conversation

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a conversation collection from a JSON or YAML file, as
// written by `chatterbox export`.
func LoadFromFile(filename string) ([]*Conversation, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read %s", filename)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return DecodeCollection(b)
	case ".yaml", ".yml":
		return loadFromYAML(b)
	default:
		return nil, errors.Errorf("unsupported file type %q, use .json, .yaml or .yml", filepath.Ext(filename))
	}
}

// loadFromYAML runs YAML input through the same validation as persisted JSON.
func loadFromYAML(b []byte) ([]*Conversation, error) {
	var conversations []*Conversation
	dec := yaml.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&conversations); err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	for i, c := range conversations {
		if c == nil {
			return nil, errors.Wrapf(ErrCorrupt, "entry %d is empty", i)
		}
	}

	encoded, err := EncodeCollection(conversations)
	if err != nil {
		return nil, err
	}
	return DecodeCollection(encoded)
}
