// Package config holds the pipeline configuration. One Config value is
// built at startup from defaults, an optional YAML file, the environment
// and CLI flags (in increasing precedence) and then passed down explicitly.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pankaj-dahiya-devops/sgguard/internal/policy"
)

// ErrMissingBucket is returned by Validate when no bucket is configured.
var ErrMissingBucket = errors.New("bucket is required")

// Defaults.
const (
	DefaultFindingsPrefix     = "audit_reports/findings"
	DefaultRemediationsPrefix = "audit_reports/remediations"
	DefaultDetectPorts        = "ALL"
	DefaultRemediatePorts     = "22,3389"
	DefaultDispatchLimit      = 4
)

// Config is the top-level application configuration.
type Config struct {
	// Bucket holds findings documents and remediation reports.
	Bucket string `yaml:"bucket" json:"bucket"`

	FindingsPrefix     string `yaml:"findings_prefix"     json:"findings_prefix"`
	RemediationsPrefix string `yaml:"remediations_prefix" json:"remediations_prefix"`

	// TopicARN is the SNS topic for run summaries. Empty disables
	// notifications.
	TopicARN string `yaml:"sns_topic_arn" json:"sns_topic_arn"`

	// DetectPorts and RemediatePorts are "ALL" or a comma-separated list.
	DetectPorts    string `yaml:"detect_ports"    json:"detect_ports"`
	RemediatePorts string `yaml:"remediate_ports" json:"remediate_ports"`

	// DryRun makes the remediator record DRY_RUN instead of revoking.
	DryRun bool `yaml:"dry_run" json:"dry_run"`

	// PolicyFile is an optional YAML policy with exemptions.
	PolicyFile string `yaml:"policy_file" json:"policy_file"`

	// DispatchLimit bounds concurrent processing of multi-record events.
	DispatchLimit int `yaml:"dispatch_limit" json:"dispatch_limit"`

	AWS AWSConfig `yaml:"aws" json:"aws"`
}

// AWSConfig holds AWS-specific defaults used when flags are not provided.
type AWSConfig struct {
	// Region is used when no region flag is set. Empty defers to the SDK.
	Region string `yaml:"region" json:"region"`

	// Profile is used when no --profile flag is provided.
	Profile string `yaml:"profile" json:"profile"`
}

// Default returns a Config with every optional field at its default.
func Default() Config {
	return Config{
		FindingsPrefix:     DefaultFindingsPrefix,
		RemediationsPrefix: DefaultRemediationsPrefix,
		DetectPorts:        DefaultDetectPorts,
		RemediatePorts:     DefaultRemediatePorts,
		DispatchLimit:      DefaultDispatchLimit,
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Bucket) == "" {
		errs = append(errs, ErrMissingBucket)
	}
	if strings.Trim(c.FindingsPrefix, "/ ") == "" {
		errs = append(errs, errors.New("findings prefix is empty"))
	}
	if strings.Trim(c.RemediationsPrefix, "/ ") == "" {
		errs = append(errs, errors.New("remediations prefix is empty"))
	}
	if _, err := policy.ParsePortSet(c.DetectPorts); err != nil {
		errs = append(errs, fmt.Errorf("detect ports: %w", err))
	}
	if _, err := policy.ParsePortSet(c.RemediatePorts); err != nil {
		errs = append(errs, fmt.Errorf("remediate ports: %w", err))
	}
	if c.DispatchLimit < 1 {
		errs = append(errs, fmt.Errorf("dispatch limit must be at least 1, got %d", c.DispatchLimit))
	}
	return errors.Join(errs...)
}

// DetectPortSet parses DetectPorts.
func (c *Config) DetectPortSet() (policy.PortSet, error) {
	return policy.ParsePortSet(c.DetectPorts)
}

// Mode is the human-readable run mode.
func (c *Config) Mode() string {
	if c.DryRun {
		return "dry-run"
	}
	return "enforce"
}
