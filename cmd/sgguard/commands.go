package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/sgguard/internal/config"
	"github.com/pankaj-dahiya-devops/sgguard/internal/engine"
	"github.com/pankaj-dahiya-devops/sgguard/internal/output"
	"github.com/pankaj-dahiya-devops/sgguard/internal/policy"
	"github.com/pankaj-dahiya-devops/sgguard/internal/store"
	"github.com/pankaj-dahiya-devops/sgguard/internal/trigger"
	"github.com/pankaj-dahiya-devops/sgguard/internal/version"
)

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "sgguard",
		Short: "sgguard: detect and revoke world-open security group ingress",
	}
	opts.register(root)

	root.AddCommand(newScanCmd(opts))
	root.AddCommand(newRemediateCmd(opts))
	root.AddCommand(newShowCmd(opts))
	root.AddCommand(newPolicyCmd())
	root.AddCommand(newLambdaCmd(opts))
	root.AddCommand(newDoctorCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

func newScanCmd(o *rootOptions) *cobra.Command {
	var (
		ports  string
		format string
	)

	cmd := &cobra.Command{
		Use:          "scan",
		Short:        "Snapshot world-open ingress into a findings document",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			a, err := o.newApp(cmd, func(c *config.Config) {
				if ports != "" {
					c.DetectPorts = ports
				}
			})
			if err != nil {
				return err
			}
			return runScan(cmd.Context(), a, cmd.OutOrStdout(), format)
		},
	}

	cmd.Flags().StringVar(&ports, "ports", "", `Ports to detect on, e.g. "22,3389" or "ALL" (overrides DETECT_PORTS)`)
	cmd.Flags().StringVar(&format, "output", "table", "Output format: json or table")
	return cmd
}

func runScan(ctx context.Context, a *app, w io.Writer, format string) error {
	account, err := a.loadAccount(ctx)
	if err != nil {
		return err
	}
	ports, err := a.cfg.DetectPortSet()
	if err != nil {
		return err
	}

	res, err := a.scanner(account).Scan(ctx, account, ports)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if format == "json" {
		return printJSON(w, res)
	}
	fmt.Fprintf(w, "Written to %s\n\n", trigger.ObjectRef{Bucket: a.cfg.Bucket, Key: res.Key})
	output.RenderFindings(w, res.Document, output.TableOptions{Colored: a.colored})
	return nil
}

func newRemediateCmd(o *rootOptions) *cobra.Command {
	var (
		key       string
		eventPath string
		dryRun    bool
		format    string
	)

	cmd := &cobra.Command{
		Use:          "remediate",
		Short:        "Revoke the eligible findings of one or more findings documents",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			if (key == "") == (eventPath == "") {
				return errors.New("exactly one of --key or --event is required")
			}
			a, err := o.newApp(cmd, func(c *config.Config) {
				if cmd.Flags().Changed("dry-run") {
					c.DryRun = dryRun
				}
			})
			if err != nil {
				return err
			}

			var refs []trigger.ObjectRef
			if key != "" {
				refs = []trigger.ObjectRef{{Bucket: a.cfg.Bucket, Key: key}}
			} else {
				refs, err = readEventRefs(cmd.InOrStdin(), eventPath)
				if err != nil {
					return err
				}
			}
			return runRemediate(cmd.Context(), a, refs, cmd.OutOrStdout(), format)
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Findings object key in --bucket")
	cmd.Flags().StringVar(&eventPath, "event", "", `Trigger event JSON file ("-" for stdin)`)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be revoked without calling EC2 (overrides DRY_RUN)")
	cmd.Flags().StringVar(&format, "output", "table", "Output format: json or table")
	return cmd
}

// readEventRefs loads a trigger event from path and extracts its objects.
func readEventRefs(stdin io.Reader, path string) ([]trigger.ObjectRef, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read event: %w", err)
	}
	return trigger.Parse(raw)
}

func runRemediate(ctx context.Context, a *app, refs []trigger.ObjectRef, w io.Writer, format string) error {
	chain, err := a.remediationChain()
	if err != nil {
		return err
	}
	account, err := a.loadAccount(ctx)
	if err != nil {
		return err
	}

	rem := a.remediator(account, chain)
	outcomes, dispatchErr := trigger.Dispatch(ctx, refs, a.cfg.DispatchLimit, rem.Remediate)

	if format == "json" {
		if err := printJSON(w, outcomes); err != nil {
			return err
		}
	} else {
		for i, out := range outcomes {
			if i > 0 {
				fmt.Fprintln(w)
			}
			printOutcome(w, refs[i], out, a.cfg.Bucket, a.colored)
		}
	}

	if dispatchErr != nil {
		return fmt.Errorf("remediation failed: %w", dispatchErr)
	}
	var bad int
	for _, out := range outcomes {
		if out != nil && out.Status == engine.StatusError {
			bad++
		}
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d findings document(s) could not be processed", bad, len(outcomes))
	}
	return nil
}

// printOutcome renders one remediation outcome. A nil outcome means the
// object failed with an error that is reported separately.
func printOutcome(w io.Writer, ref trigger.ObjectRef, out *engine.Outcome, bucket string, colored bool) {
	if out == nil {
		fmt.Fprintf(w, "%s: FAILED\n", ref)
		return
	}
	switch out.Status {
	case engine.StatusOK:
		fmt.Fprintf(w, "%s: %s\n", ref, out.Status)
		fmt.Fprintf(w, "Report written to %s\n\n", trigger.ObjectRef{Bucket: bucket, Key: out.ReportKey})
		output.RenderReport(w, out.Report, output.TableOptions{Colored: colored})
	case engine.StatusError:
		fmt.Fprintf(w, "%s: %s (%s)\n", ref, out.Status, out.Message)
	default:
		fmt.Fprintf(w, "%s: %s\n", ref, out.Status)
	}
}

func newShowCmd(o *rootOptions) *cobra.Command {
	var (
		key    string
		format string
	)

	cmd := &cobra.Command{
		Use:          "show",
		Short:        "Print a stored findings document or remediation report",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			if key == "" {
				return errors.New("--key is required")
			}
			a, err := o.newApp(cmd, nil)
			if err != nil {
				return err
			}
			return runShow(cmd.Context(), a, key, cmd.OutOrStdout(), format)
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Object key in --bucket")
	cmd.Flags().StringVar(&format, "output", "table", "Output format: json or table")
	return cmd
}

// runShow reads key from the configured bucket. Keys under the remediations
// prefix are reports; everything else is decoded as a findings document.
func runShow(ctx context.Context, a *app, key string, w io.Writer, format string) error {
	var objects store.ObjectStore
	if a.localDir != "" {
		objects = a.objectStore(nil)
	} else {
		account, err := a.loadAccount(ctx)
		if err != nil {
			return err
		}
		objects = a.objectStore(account)
	}

	opts := output.TableOptions{Colored: a.colored}
	if store.UnderPrefix(key, a.cfg.RemediationsPrefix) {
		rep, err := store.GetReport(ctx, objects, a.cfg.Bucket, key)
		if err != nil {
			return err
		}
		if format == "json" {
			return printJSON(w, rep)
		}
		output.RenderReport(w, rep, opts)
		return nil
	}

	doc, err := store.GetFindings(ctx, objects, a.cfg.Bucket, key)
	if err != nil {
		return err
	}
	if format == "json" {
		return printJSON(w, doc)
	}
	output.RenderFindings(w, doc, opts)
	return nil
}

func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Remediation policy file commands",
	}
	cmd.AddCommand(newPolicyValidateCmd())
	return cmd
}

func newPolicyValidateCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:          "validate",
		Short:        "Check a policy file for errors",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return errors.New("--file is required")
			}
			return runPolicyValidate(cmd.OutOrStdout(), path)
		},
	}

	cmd.Flags().StringVar(&path, "file", "", "Policy YAML file")
	return cmd
}

func runPolicyValidate(w io.Writer, path string) error {
	cfg, err := policy.LoadPolicy(path)
	if err != nil {
		return err
	}
	if errs := policy.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(w, "  FAIL: %s\n", e)
		}
		return fmt.Errorf("policy file %s has %d error(s)", path, len(errs))
	}

	res, err := policy.Resolve("", cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: OK\n", path)
	if cfg.RemediatePorts != "" {
		fmt.Fprintf(w, "  remediate ports: %s\n", res.RemediatePorts)
	}
	fmt.Fprintf(w, "  exempt groups:   %d\n", len(res.ExemptGroups))
	names := make([]string, 0, len(res.Exemptions))
	for _, e := range res.Exemptions {
		names = append(names, e.Name)
	}
	fmt.Fprintf(w, "  exemptions:      %d %s\n", len(names), strings.Join(names, ", "))
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), version.Info())
		},
	}
}

// printJSON writes v as indented JSON to w.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
