package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/sgguard/internal/engine"
	"github.com/pankaj-dahiya-devops/sgguard/internal/log"
	"github.com/pankaj-dahiya-devops/sgguard/internal/trigger"
)

type (
	detectorHandler   func(ctx context.Context, event json.RawMessage) (*engine.ScanResult, error)
	remediatorHandler func(ctx context.Context, event json.RawMessage) (any, error)
)

// batchOutcome is returned when one event carries more than one object.
type batchOutcome struct {
	Status   engine.Status     `json:"status"`
	Outcomes []*engine.Outcome `json:"outcomes"`
}

func newLambdaCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lambda",
		Short: "Serve a pipeline stage as an AWS Lambda function",
	}

	cmd.AddCommand(&cobra.Command{
		Use:          "detector",
		Short:        "Scheduled detector: scan and write a findings document per invocation",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.newApp(cmd, nil)
			if err != nil {
				return err
			}
			h, err := newDetectorHandler(cmd.Context(), a)
			if err != nil {
				return err
			}
			lambda.Start(h)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:          "remediator",
		Short:        "Event-driven remediator: process the findings objects named by each event",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.newApp(cmd, nil)
			if err != nil {
				return err
			}
			h, err := newRemediatorHandler(cmd.Context(), a)
			if err != nil {
				return err
			}
			lambda.Start(h)
			return nil
		},
	})

	return cmd
}

// newDetectorHandler resolves the account and port policy once per cold
// start. The event payload is ignored.
func newDetectorHandler(ctx context.Context, a *app) (detectorHandler, error) {
	account, err := a.loadAccount(ctx)
	if err != nil {
		return nil, err
	}
	ports, err := a.cfg.DetectPortSet()
	if err != nil {
		return nil, err
	}
	scanner := a.scanner(account)

	return func(ctx context.Context, _ json.RawMessage) (*engine.ScanResult, error) {
		return scanner.Scan(invocationContext(ctx), account, ports)
	}, nil
}

// newRemediatorHandler compiles the policy once per cold start. An event
// that names no usable object is answered with an ERROR outcome rather than
// a Lambda error so it is not retried. Storage failures are returned.
func newRemediatorHandler(ctx context.Context, a *app) (remediatorHandler, error) {
	chain, err := a.remediationChain()
	if err != nil {
		return nil, err
	}
	account, err := a.loadAccount(ctx)
	if err != nil {
		return nil, err
	}
	rem := a.remediator(account, chain)

	return func(ctx context.Context, event json.RawMessage) (any, error) {
		ctx = invocationContext(ctx)

		refs, err := trigger.Parse(event)
		if err != nil {
			a.logger.ErrorContext(ctx, "unusable trigger event", slog.Any("error", err))
			return &engine.Outcome{Status: engine.StatusError, Message: err.Error()}, nil
		}

		outcomes, err := trigger.Dispatch(ctx, refs, a.cfg.DispatchLimit, rem.Remediate)
		if err != nil {
			return nil, err
		}
		if len(outcomes) == 1 {
			return outcomes[0], nil
		}
		return &batchOutcome{Status: engine.StatusOK, Outcomes: outcomes}, nil
	}, nil
}

// invocationContext tags log records with the Lambda request id and
// function name when running under the Lambda runtime.
func invocationContext(ctx context.Context) context.Context {
	lc, ok := lambdacontext.FromContext(ctx)
	if !ok {
		return ctx
	}
	attrs := []slog.Attr{slog.String("request_id", lc.AwsRequestID)}
	if fn, err := arn.Parse(lc.InvokedFunctionArn); err == nil {
		attrs = append(attrs, slog.String("function", strings.TrimPrefix(fn.Resource, "function:")))
	}
	return log.ContextAttrs(ctx, attrs...)
}
