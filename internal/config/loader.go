package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// LookupFunc reads one environment variable. os.LookupEnv in production.
type LookupFunc func(key string) (string, bool)

// EnvLoader layers an optional YAML file and the environment over Default.
type EnvLoader struct {
	Path   string
	Lookup LookupFunc
}

// NewEnvLoader returns a loader reading path (may be empty) and the
// process environment.
func NewEnvLoader(path string) *EnvLoader {
	return &EnvLoader{Path: path, Lookup: os.LookupEnv}
}

// Merge layers defaults, the file and the environment. It does not validate,
// so callers can apply flag overrides first and then call Config.Validate.
func (l *EnvLoader) Merge() (*Config, error) {
	cfg := Default()
	if l.Path != "" {
		if err := mergeFile(&cfg, l.Path); err != nil {
			return nil, err
		}
	}
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := mergeEnv(&cfg, lookup); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeFile decodes the YAML file over cfg. Keys absent from the file keep
// their current values; unknown keys are rejected.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// mergeEnv applies every recognised environment variable that is set.
func mergeEnv(cfg *Config, lookup LookupFunc) error {
	strVars := []struct {
		key string
		dst *string
	}{
		{"BUCKET", &cfg.Bucket},
		{"FINDINGS_PREFIX", &cfg.FindingsPrefix},
		{"REMEDIATIONS_PREFIX", &cfg.RemediationsPrefix},
		{"SNS_TOPIC_ARN", &cfg.TopicARN},
		{"DETECT_PORTS", &cfg.DetectPorts},
		{"REMEDIATE_PORTS", &cfg.RemediatePorts},
		{"POLICY_FILE", &cfg.PolicyFile},
		{"AWS_DEFAULT_REGION", &cfg.AWS.Region},
		{"AWS_REGION", &cfg.AWS.Region},
		{"AWS_PROFILE", &cfg.AWS.Profile},
	}
	for _, v := range strVars {
		if val, ok := lookup(v.key); ok && val != "" {
			*v.dst = val
		}
	}

	var errs []error
	if val, ok := lookup("DRY_RUN"); ok && val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			errs = append(errs, fmt.Errorf("DRY_RUN: invalid boolean %q", val))
		} else {
			cfg.DryRun = b
		}
	}
	if val, ok := lookup("DISPATCH_LIMIT"); ok && val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			errs = append(errs, fmt.Errorf("DISPATCH_LIMIT: invalid integer %q", val))
		} else {
			cfg.DispatchLimit = n
		}
	}
	return errors.Join(errs...)
}
