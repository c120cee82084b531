package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/sgguard/internal/config"
	"github.com/pankaj-dahiya-devops/sgguard/internal/engine"
	"github.com/pankaj-dahiya-devops/sgguard/internal/log"
	"github.com/pankaj-dahiya-devops/sgguard/internal/notify"
	"github.com/pankaj-dahiya-devops/sgguard/internal/policy"
	"github.com/pankaj-dahiya-devops/sgguard/internal/providers/aws/common"
	awssecurity "github.com/pankaj-dahiya-devops/sgguard/internal/providers/aws/security"
	"github.com/pankaj-dahiya-devops/sgguard/internal/rules"
	"github.com/pankaj-dahiya-devops/sgguard/internal/store"
	"github.com/pankaj-dahiya-devops/sgguard/internal/telemetry"
)

// securityProvider is everything the pipeline needs from EC2.
type securityProvider interface {
	awssecurity.InventoryCollector
	awssecurity.Revoker
}

// Injection points: tests replace these with fakes.
var (
	newAWSProvider      = func() common.AWSClientProvider { return common.NewDefaultAWSClientProvider() }
	newSecurityProvider = func() securityProvider { return awssecurity.NewDefaultSecurityProvider() }
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	profile    string
	region     string
	bucket     string
	localDir   string
	verbose    bool
	noColor    bool
}

func (o *rootOptions) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&o.configPath, "config", "", "YAML configuration file")
	f.StringVar(&o.profile, "profile", "", "AWS profile name (default: uses environment / default profile)")
	f.StringVar(&o.region, "region", "", "AWS region (default: AWS_REGION or the profile's region)")
	f.StringVar(&o.bucket, "bucket", "", "Bucket for findings and reports (overrides BUCKET)")
	f.StringVar(&o.localDir, "local-dir", "", "Store documents under this directory instead of S3")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "Enable debug logging")
	f.BoolVar(&o.noColor, "no-color", false, "Disable colored table output")
}

// mergeConfig builds the configuration without validating it:
// defaults < file < environment < flags.
func (o *rootOptions) mergeConfig() (*config.Config, error) {
	cfg, err := config.NewEnvLoader(o.configPath).Merge()
	if err != nil {
		return nil, err
	}
	if o.profile != "" {
		cfg.AWS.Profile = o.profile
	}
	if o.region != "" {
		cfg.AWS.Region = o.region
	}
	if o.bucket != "" {
		cfg.Bucket = o.bucket
	}
	return cfg, nil
}

// app is the per-process wiring shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	tel      *telemetry.Telemetry
	aws      common.AWSClientProvider
	security securityProvider
	localDir string
	colored  bool
}

// newApp merges and validates configuration. override, when non-nil, applies
// command-specific flags before validation.
func (o *rootOptions) newApp(cmd *cobra.Command, override func(*config.Config)) (*app, error) {
	cfg, err := o.mergeConfig()
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(telemetry.Options{})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   log.NewWithWriter(cmd.ErrOrStderr(), o.verbose),
		tel:      tel,
		aws:      newAWSProvider(),
		security: newSecurityProvider(),
		localDir: o.localDir,
		colored:  !o.noColor,
	}, nil
}

func (a *app) loadAccount(ctx context.Context) (*common.ProfileConfig, error) {
	account, err := a.aws.LoadProfile(ctx, a.cfg.AWS.Profile, a.cfg.AWS.Region)
	if err != nil {
		return nil, fmt.Errorf("load AWS account: %w", err)
	}
	return account, nil
}

func (a *app) objectStore(account *common.ProfileConfig) store.ObjectStore {
	if a.localDir != "" {
		return store.NewFSStore(a.localDir)
	}
	return store.NewS3Store(account.Clients.S3)
}

func (a *app) notifier(account *common.ProfileConfig) notify.Notifier {
	if a.cfg.TopicARN == "" || account.Clients == nil {
		return notify.Nop{}
	}
	return notify.NewSNSPublisher(account.Clients.SNS, a.cfg.TopicARN)
}

func (a *app) engineOptions(account *common.ProfileConfig) engine.Options {
	return engine.Options{
		Notifier:  a.notifier(account),
		Telemetry: a.tel,
		Logger:    a.logger,
	}
}

func (a *app) scanner(account *common.ProfileConfig) *engine.Scanner {
	return engine.NewScanner(
		a.security,
		engine.NewDetectorRegistry(),
		a.objectStore(account),
		a.cfg.Bucket,
		a.cfg.FindingsPrefix,
		a.engineOptions(account),
	)
}

// remediationChain loads the optional policy file and builds the filter
// chain from it and the configured remediate ports.
func (a *app) remediationChain() (rules.Chain, error) {
	var pcfg *policy.PolicyConfig
	if a.cfg.PolicyFile != "" {
		loaded, err := policy.LoadPolicy(a.cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		if errs := policy.Validate(loaded); len(errs) > 0 {
			return nil, fmt.Errorf("policy file %s: %w", a.cfg.PolicyFile, errors.Join(errs...))
		}
		pcfg = loaded
	}
	res, err := policy.Resolve(a.cfg.RemediatePorts, pcfg)
	if err != nil {
		return nil, err
	}
	return rules.NewRemediationChain(res), nil
}

func (a *app) remediator(account *common.ProfileConfig, chain rules.Chain) *engine.Remediator {
	return engine.NewRemediator(
		account,
		a.security,
		chain,
		a.objectStore(account),
		engine.RemediatorConfig{
			Bucket:             a.cfg.Bucket,
			FindingsPrefix:     a.cfg.FindingsPrefix,
			RemediationsPrefix: a.cfg.RemediationsPrefix,
			DryRun:             a.cfg.DryRun,
		},
		a.engineOptions(account),
	)
}

// validateFormat rejects unknown --output values up front.
func validateFormat(format string) error {
	switch format {
	case "table", "json":
		return nil
	}
	return fmt.Errorf("unknown output format %q: want table or json", format)
}
