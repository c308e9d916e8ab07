package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
)

// LoadPolicy returns the default retrieval policy, overlaid with the YAML file at path
// when path is set. Fields absent from the file keep their defaults.
func LoadPolicy(path string) (domain.RetrievalPolicy, error) {
	policy := domain.DefaultRetrievalPolicy()
	if strings.TrimSpace(path) == "" {
		return policy, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.RetrievalPolicy{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(raw)
}

func ParsePolicy(raw []byte) (domain.RetrievalPolicy, error) {
	policy := domain.DefaultRetrievalPolicy()

	// A present approved_domains key replaces the default list wholesale.
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&policy); err != nil && !errors.Is(err, io.EOF) {
		return domain.RetrievalPolicy{}, domain.WrapError(domain.ErrInvalidInput, "parse policy file", err)
	}
	if err := policy.Validate(); err != nil {
		return domain.RetrievalPolicy{}, domain.WrapError(domain.ErrInvalidInput, "validate policy", err)
	}
	return policy, nil
}

// MarshalPolicy renders policy as YAML.
func MarshalPolicy(policy domain.RetrievalPolicy) ([]byte, error) {
	out, err := yaml.Marshal(policy)
	if err != nil {
		return nil, fmt.Errorf("marshal policy: %w", err)
	}
	return out, nil
}
