package policy

import (
	"fmt"
	"strings"
)

// Validate checks cfg for semantic correctness and returns all validation errors
// found. An empty slice means the config is valid.
//
// Checks performed:
//   - version must be 1
//   - remediate_ports must parse as "ALL" or a list of ports, if set
//   - exempt_groups entries must look like security group ids (sg-...)
//   - exemption names must be non-empty and unique
//   - exemption expressions must compile and evaluate to bool
//
// All errors are collected before returning; Validate never stops at the first error.
func Validate(cfg *PolicyConfig) []error {
	if cfg == nil {
		return []error{fmt.Errorf("policy config is nil")}
	}

	var errs []error

	if cfg.Version != 1 {
		errs = append(errs, fmt.Errorf("version: unsupported value %d; must be 1", cfg.Version))
	}

	if cfg.RemediatePorts != "" {
		if _, err := ParsePortSet(cfg.RemediatePorts); err != nil {
			errs = append(errs, fmt.Errorf("remediate_ports: %w", err))
		}
	}

	for i, id := range cfg.ExemptGroups {
		if !strings.HasPrefix(id, "sg-") || len(id) <= len("sg-") {
			errs = append(errs, fmt.Errorf("exempt_groups[%d]: %q is not a security group id", i, id))
		}
	}

	env, err := newCELEnv()
	if err != nil {
		return append(errs, fmt.Errorf("exemptions: %w", err))
	}
	seen := make(map[string]struct{}, len(cfg.Exemptions))
	for i, ec := range cfg.Exemptions {
		if ec.Name == "" {
			errs = append(errs, fmt.Errorf("exemptions[%d].name: must not be empty", i))
		} else if _, dup := seen[ec.Name]; dup {
			errs = append(errs, fmt.Errorf("exemptions[%d].name: duplicate name %q", i, ec.Name))
		}
		seen[ec.Name] = struct{}{}

		if strings.TrimSpace(ec.Expression) == "" {
			errs = append(errs, fmt.Errorf("exemptions[%d].expression: must not be empty", i))
			continue
		}
		if _, err := compileExemption(env, ec); err != nil {
			errs = append(errs, fmt.Errorf("exemptions[%d].expression: %w", i, err))
		}
	}

	return errs
}
