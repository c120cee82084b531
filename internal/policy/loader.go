package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadPolicy reads and decodes a policy file. Unknown keys are rejected so a
// typo in an exemption block cannot silently disable it. Semantic checks,
// the version included, are left to Validate.
func LoadPolicy(path string) (*PolicyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg PolicyConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("policy file %s is empty", path)
		}
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}

	return &cfg, nil
}
