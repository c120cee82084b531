package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pankaj-dahiya-devops/sgguard/internal/models"
)

// ErrMalformedDocument wraps decode and header failures of a stored findings
// document.
var ErrMalformedDocument = errors.New("malformed findings document")

// validator is satisfied by every persisted document type.
type validator interface {
	Validate() error
}

// PutDocument validates v, encodes it as indented JSON and writes it once.
// Nothing is written when validation fails.
func PutDocument(ctx context.Context, s ObjectStore, bucket, key string, v validator) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("refusing to write %s: %w", key, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, bucket, key, data)
}

// GetFindings loads a findings document. Storage errors are returned as-is;
// decode and header errors wrap ErrMalformedDocument.
func GetFindings(ctx context.Context, s ObjectStore, bucket, key string) (*models.FindingsDocument, error) {
	data, err := s.Get(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return DecodeFindings(data)
}

// DecodeFindings parses a findings document and checks its header. Findings
// that break their own invariants and a stale findingsCount are left for the
// caller to judge.
func DecodeFindings(data []byte) (*models.FindingsDocument, error) {
	var doc models.FindingsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}
	if err := doc.ValidateHeader(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}
	return &doc, nil
}

// GetReport loads and validates a remediation report.
func GetReport(ctx context.Context, s ObjectStore, bucket, key string) (*models.RemediationReport, error) {
	data, err := s.Get(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	var rep models.RemediationReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if err := rep.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", key, err)
	}
	return &rep, nil
}
