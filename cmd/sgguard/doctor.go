package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/sgguard/internal/config"
	"github.com/pankaj-dahiya-devops/sgguard/internal/policy"
	"github.com/pankaj-dahiya-devops/sgguard/internal/providers/aws/common"
)

// errUnhealthy makes the process exit non-zero after doctor has already
// printed its diagnosis. main does not print it.
var errUnhealthy = errors.New("environment is unhealthy")

// DoctorResult is the structured output of sgguard doctor. It can be
// serialised to JSON via --format=json or rendered as a table (default).
type DoctorResult struct {
	Config struct {
		Valid  bool     `json:"valid"`
		Mode   string   `json:"mode,omitempty"`
		Errors []string `json:"errors,omitempty"`
	} `json:"config"`

	AWS struct {
		Profile       string `json:"profile,omitempty"`
		Credentials   bool   `json:"credentials_ok"`
		AccountID     string `json:"account_id,omitempty"`
		Region        string `json:"region,omitempty"`
		RegionsOK     bool   `json:"regions_ok"`
		RegionEnabled bool   `json:"region_enabled"`
		Error         string `json:"error,omitempty"`
	} `json:"aws"`

	Storage struct {
		Location  string `json:"location,omitempty"`
		Reachable bool   `json:"reachable"`
		Error     string `json:"error,omitempty"`
	} `json:"storage"`

	Notifications struct {
		TopicARN  string `json:"topic_arn,omitempty"`
		Reachable bool   `json:"reachable"`
		Error     string `json:"error,omitempty"`
	} `json:"notifications"`

	Policy struct {
		Path    string   `json:"path,omitempty"`
		Present bool     `json:"present"`
		Valid   bool     `json:"valid"`
		Errors  []string `json:"errors,omitempty"`
	} `json:"policy"`

	OverallHealthy bool `json:"overall_healthy"`
}

func newDoctorCmd(o *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:           "doctor",
		Short:         "Run environment diagnostics",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.mergeConfig()
			if err != nil {
				return err
			}
			result, err := runDoctor(cmd.Context(), newAWSProvider(), cfg, o.localDir, cmd.OutOrStdout(), format)
			if err != nil {
				return err
			}
			if !result.OverallHealthy {
				return errUnhealthy
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", `Output format: "table" or "json"`)
	return cmd
}

// runDoctor collects all diagnostic results, renders them to w in the
// requested format, and returns the result.
// The returned error covers only rendering failures. Callers inspect
// result.OverallHealthy for the diagnosis itself.
func runDoctor(ctx context.Context, awsProvider common.AWSClientProvider, cfg *config.Config, localDir string, w io.Writer, format string) (DoctorResult, error) {
	result := collectDoctorResult(ctx, awsProvider, cfg, localDir)

	switch format {
	case "json":
		if err := json.NewEncoder(w).Encode(result); err != nil {
			return result, fmt.Errorf("encode doctor result: %w", err)
		}
	default:
		renderDoctorTable(result, w)
	}

	return result, nil
}

// collectDoctorResult runs all environment checks and populates a
// DoctorResult. Checks that depend on AWS credentials are skipped when
// credentials fail.
func collectDoctorResult(ctx context.Context, awsProvider common.AWSClientProvider, cfg *config.Config, localDir string) DoctorResult {
	var result DoctorResult

	// Configuration.
	result.Config.Mode = cfg.Mode()
	if err := cfg.Validate(); err != nil {
		result.Config.Errors = splitJoined(err)
	} else {
		result.Config.Valid = true
	}

	// AWS: credentials, STS account id, region discovery.
	result.AWS.Profile = cfg.AWS.Profile
	account, err := awsProvider.LoadProfile(ctx, cfg.AWS.Profile, cfg.AWS.Region)
	if err != nil {
		result.AWS.Error = err.Error()
	} else {
		result.AWS.Credentials = true
		result.AWS.AccountID = account.AccountID
		result.AWS.Region = account.Region
		if regions, err := awsProvider.GetActiveRegions(ctx, account); err != nil {
			result.AWS.Error = err.Error()
		} else {
			result.AWS.RegionsOK = true
			result.AWS.RegionEnabled = slices.Contains(regions, account.Region)
		}
	}

	// Storage: local directory or the S3 bucket.
	switch {
	case localDir != "":
		result.Storage.Location = localDir
		if fi, err := os.Stat(localDir); err != nil {
			result.Storage.Error = err.Error()
		} else if !fi.IsDir() {
			result.Storage.Error = "not a directory"
		} else {
			result.Storage.Reachable = true
		}
	case cfg.Bucket == "":
		result.Storage.Error = config.ErrMissingBucket.Error()
	case account == nil || account.Clients == nil:
		result.Storage.Location = "s3://" + cfg.Bucket
		result.Storage.Error = "skipped"
	default:
		result.Storage.Location = "s3://" + cfg.Bucket
		if _, err := account.Clients.S3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
			result.Storage.Error = err.Error()
		} else {
			result.Storage.Reachable = true
		}
	}

	// Notifications are optional.
	result.Notifications.TopicARN = cfg.TopicARN
	if cfg.TopicARN != "" {
		if account == nil || account.Clients == nil {
			result.Notifications.Error = "skipped"
		} else if _, err := account.Clients.SNS.GetTopicAttributes(ctx, &sns.GetTopicAttributesInput{TopicArn: aws.String(cfg.TopicARN)}); err != nil {
			result.Notifications.Error = err.Error()
		} else {
			result.Notifications.Reachable = true
		}
	}

	// Policy file is optional.
	result.Policy.Path = cfg.PolicyFile
	if cfg.PolicyFile != "" {
		_, statErr := os.Stat(cfg.PolicyFile)
		switch {
		case statErr == nil:
			result.Policy.Present = true
			pcfg, loadErr := policy.LoadPolicy(cfg.PolicyFile)
			if loadErr != nil {
				result.Policy.Errors = []string{loadErr.Error()}
				break
			}
			errs := policy.Validate(pcfg)
			if len(errs) == 0 {
				result.Policy.Valid = true
			}
			for _, e := range errs {
				result.Policy.Errors = append(result.Policy.Errors, e.Error())
			}
		case os.IsNotExist(statErr):
			result.Policy.Errors = []string{statErr.Error()}
		default:
			// Present but unreadable.
			result.Policy.Present = true
			result.Policy.Errors = []string{statErr.Error()}
		}
	}

	result.OverallHealthy = result.Config.Valid &&
		result.AWS.Credentials &&
		result.AWS.RegionsOK &&
		result.AWS.RegionEnabled &&
		result.Storage.Reachable &&
		(cfg.TopicARN == "" || result.Notifications.Reachable) &&
		(cfg.PolicyFile == "" || result.Policy.Valid)

	return result
}

// splitJoined unpacks an errors.Join result into one string per error.
func splitJoined(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

// renderDoctorTable writes the human-readable diagnostic output from result to w.
func renderDoctorTable(result DoctorResult, w io.Writer) {
	fmt.Fprintln(w, "Environment Diagnostics")

	fmt.Fprintln(w, "\nConfiguration:")
	if result.Config.Valid {
		doctorPrint(w, "Settings", "OK", "mode: "+result.Config.Mode)
	} else {
		for _, e := range result.Config.Errors {
			doctorPrint(w, "Settings", "FAIL", e)
		}
	}

	if result.AWS.Profile != "" {
		fmt.Fprintf(w, "\nAWS (profile: %s):\n", result.AWS.Profile)
	} else {
		fmt.Fprintln(w, "\nAWS:")
	}
	if !result.AWS.Credentials {
		doctorPrint(w, "Credentials", "FAIL", result.AWS.Error)
		doctorPrint(w, "STS Identity", "FAIL", "skipped")
		doctorPrint(w, "Regions API", "FAIL", "skipped")
	} else {
		doctorPrint(w, "Credentials", "OK", "")
		doctorPrint(w, "STS Identity", "OK", "Account: "+result.AWS.AccountID+", Region: "+result.AWS.Region)
		switch {
		case !result.AWS.RegionsOK:
			doctorPrint(w, "Regions API", "FAIL", result.AWS.Error)
		case !result.AWS.RegionEnabled:
			doctorPrint(w, "Regions API", "FAIL", result.AWS.Region+" is not enabled for this account")
		default:
			doctorPrint(w, "Regions API", "OK", "")
		}
	}

	fmt.Fprintln(w, "\nStorage:")
	if result.Storage.Reachable {
		doctorPrint(w, "Findings store", "OK", result.Storage.Location)
	} else {
		doctorPrint(w, "Findings store", "FAIL", result.Storage.Error)
	}

	fmt.Fprintln(w, "\nNotifications:")
	switch {
	case result.Notifications.TopicARN == "":
		doctorPrint(w, "SNS topic", "Not configured (optional)", "")
	case result.Notifications.Reachable:
		doctorPrint(w, "SNS topic", "OK", result.Notifications.TopicARN)
	default:
		doctorPrint(w, "SNS topic", "FAIL", result.Notifications.Error)
	}

	fmt.Fprintln(w, "\nPolicy:")
	switch {
	case result.Policy.Path == "":
		doctorPrint(w, "Policy file", "Not configured (optional)", "")
	case result.Policy.Valid:
		doctorPrint(w, "Policy file", "OK", result.Policy.Path)
	default:
		for _, e := range result.Policy.Errors {
			doctorPrint(w, "Policy file", "FAIL", e)
		}
	}
}

// doctorPrint writes a single diagnostic check line to w.
// When detail is non-empty it is appended in parentheses.
func doctorPrint(w io.Writer, label, status, detail string) {
	if detail != "" {
		fmt.Fprintf(w, "  %s: %s (%s)\n", label, status, detail)
	} else {
		fmt.Fprintf(w, "  %s: %s\n", label, status)
	}
}
