package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/pankaj-dahiya-devops/sgguard/internal/config"
	"github.com/pankaj-dahiya-devops/sgguard/internal/engine"
	"github.com/pankaj-dahiya-devops/sgguard/internal/log"
	"github.com/pankaj-dahiya-devops/sgguard/internal/telemetry"
)

func lambdaApp(t *testing.T, sec *fakeSecurity, logs *bytes.Buffer) *app {
	t.Helper()
	cfg := config.Default()
	cfg.Bucket = testBucket
	return &app{
		cfg:      &cfg,
		logger:   log.NewWithWriter(logs, true),
		tel:      telemetry.Noop(),
		aws:      goodMockAWS(),
		security: sec,
		localDir: t.TempDir(),
	}
}

func lambdaCtx() context.Context {
	return lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{
		AwsRequestID:       "req-42",
		InvokedFunctionArn: "arn:aws:lambda:us-east-1:123456789012:function:cc72-remediator",
	})
}

func s3Event(keys ...string) json.RawMessage {
	var recs []string
	for _, k := range keys {
		recs = append(recs, `{"s3":{"bucket":{"name":"`+testBucket+`"},"object":{"key":"`+k+`"}}}`)
	}
	return json.RawMessage(`{"Records":[` + strings.Join(recs, ",") + `]}`)
}

func detect(t *testing.T, a *app) *engine.ScanResult {
	t.Helper()
	h, err := newDetectorHandler(context.Background(), a)
	if err != nil {
		t.Fatalf("detector handler: %v", err)
	}
	res, err := h(lambdaCtx(), json.RawMessage(`{"source":"aws.events"}`))
	if err != nil {
		t.Fatalf("detector invocation: %v", err)
	}
	return res
}

// ── detector ──────────────────────────────────────────────────────────────────

func TestDetectorHandler_WritesFindings(t *testing.T) {
	var logs bytes.Buffer
	a := lambdaApp(t, &fakeSecurity{inv: webInventory()}, &logs)

	res := detect(t, a)
	if res.Status != engine.StatusOK || res.Count != 2 {
		t.Errorf("result: got %+v; want OK with 2 findings", res)
	}
	if !strings.Contains(logs.String(), `"request_id":"req-42"`) {
		t.Errorf("logs missing request id; got:\n%s", logs.String())
	}
}

// ── remediator ────────────────────────────────────────────────────────────────

func TestRemediatorHandler_SingleRecord(t *testing.T) {
	var logs bytes.Buffer
	sec := &fakeSecurity{inv: webInventory()}
	a := lambdaApp(t, sec, &logs)
	key := detect(t, a).Key

	h, err := newRemediatorHandler(context.Background(), a)
	if err != nil {
		t.Fatalf("remediator handler: %v", err)
	}
	got, err := h(lambdaCtx(), s3Event(key))
	if err != nil {
		t.Fatalf("invocation: %v", err)
	}
	out, ok := got.(*engine.Outcome)
	if !ok {
		t.Fatalf("response type: got %T; want *engine.Outcome", got)
	}
	if out.Status != engine.StatusOK || out.Summary == nil || out.Summary.Revoked != 1 {
		t.Errorf("outcome: got %+v", out)
	}
	if sec.revokeCount() != 1 {
		t.Errorf("revoke calls: got %d; want 1", sec.revokeCount())
	}
	if !strings.Contains(logs.String(), `"function":"cc72-remediator"`) {
		t.Errorf("logs missing function name; got:\n%s", logs.String())
	}
}

func TestRemediatorHandler_Batch(t *testing.T) {
	var logs bytes.Buffer
	a := lambdaApp(t, &fakeSecurity{inv: webInventory()}, &logs)
	key := detect(t, a).Key

	h, err := newRemediatorHandler(context.Background(), a)
	if err != nil {
		t.Fatalf("remediator handler: %v", err)
	}
	got, err := h(lambdaCtx(), s3Event(key, "other/report.json"))
	if err != nil {
		t.Fatalf("invocation: %v", err)
	}
	batch, ok := got.(*batchOutcome)
	if !ok {
		t.Fatalf("response type: got %T; want *batchOutcome", got)
	}
	if len(batch.Outcomes) != 2 {
		t.Fatalf("outcomes: got %d; want 2", len(batch.Outcomes))
	}
	if batch.Outcomes[0].Status != engine.StatusOK || batch.Outcomes[1].Status != engine.StatusIgnored {
		t.Errorf("statuses: got %s, %s", batch.Outcomes[0].Status, batch.Outcomes[1].Status)
	}
}

func TestRemediatorHandler_MalformedEvent(t *testing.T) {
	var logs bytes.Buffer
	sec := &fakeSecurity{}
	a := lambdaApp(t, sec, &logs)

	h, err := newRemediatorHandler(context.Background(), a)
	if err != nil {
		t.Fatalf("remediator handler: %v", err)
	}
	got, err := h(lambdaCtx(), json.RawMessage(`{"hello":"world"}`))
	if err != nil {
		t.Fatalf("malformed event must not be a Lambda error: %v", err)
	}
	out, ok := got.(*engine.Outcome)
	if !ok || out.Status != engine.StatusError || out.Message == "" {
		t.Errorf("response: got %+v", got)
	}
	if sec.revokeCount() != 0 {
		t.Error("malformed event must not revoke anything")
	}
}

func TestRemediatorHandler_MissingObjectIsErrorOutcome(t *testing.T) {
	var logs bytes.Buffer
	a := lambdaApp(t, &fakeSecurity{}, &logs)

	h, err := newRemediatorHandler(context.Background(), a)
	if err != nil {
		t.Fatalf("remediator handler: %v", err)
	}
	got, err := h(lambdaCtx(), s3Event(config.DefaultFindingsPrefix+"/gone.json"))
	if err != nil {
		t.Fatalf("missing object must not be a Lambda error: %v", err)
	}
	out, ok := got.(*engine.Outcome)
	if !ok || out.Status != engine.StatusError {
		t.Errorf("response: got %+v", got)
	}
}

func TestRemediatorHandler_BadPolicyFailsColdStart(t *testing.T) {
	var logs bytes.Buffer
	a := lambdaApp(t, &fakeSecurity{}, &logs)
	a.cfg.PolicyFile = "does-not-exist.yaml"

	if _, err := newRemediatorHandler(context.Background(), a); err == nil {
		t.Error("expected error for unreadable policy file")
	}
}

func TestInvocationContext_OutsideLambda(t *testing.T) {
	ctx := context.Background()
	if got := invocationContext(ctx); got != ctx {
		t.Error("context must be returned unchanged outside Lambda")
	}
}
