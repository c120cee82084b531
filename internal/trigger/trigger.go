// Package trigger turns object-created events into object references the
// remediation engine can process. Three shapes are accepted: EventBridge
// "Object Created" events, S3 event notifications and a direct
// {"bucket": ..., "key": ...} invocation.
package trigger

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
)

// ErrMalformedEvent is returned when an event carries no usable bucket/key.
var ErrMalformedEvent = errors.New("malformed event")

// ObjectRef identifies one stored object.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (r ObjectRef) String() string {
	return fmt.Sprintf("s3://%s/%s", r.Bucket, r.Key)
}

// objectCreatedDetail is the detail payload of an EventBridge
// "Object Created" event.
type objectCreatedDetail struct {
	Bucket struct {
		Name string `json:"name"`
	} `json:"bucket"`
	Object struct {
		Key string `json:"key"`
	} `json:"object"`
}

// envelope overlays the three accepted shapes so one decode can tell them
// apart.
type envelope struct {
	events.S3Event
	events.CloudWatchEvent
	ObjectRef
}

// Parse extracts the object references carried by raw. S3 and EventBridge
// keys arrive URL-encoded and are decoded; direct invocations are taken
// literally.
func Parse(raw []byte) ([]ObjectRef, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	switch {
	case len(env.Records) > 0:
		return fromRecords(env.Records)
	case len(env.Detail) > 0:
		return fromDetail(env.Detail)
	case env.ObjectRef != (ObjectRef{}):
		if env.Bucket == "" || env.Key == "" {
			return nil, fmt.Errorf("%w: missing bucket/key", ErrMalformedEvent)
		}
		return []ObjectRef{env.ObjectRef}, nil
	}
	return nil, fmt.Errorf("%w: unrecognised event shape", ErrMalformedEvent)
}

func fromRecords(records []events.S3EventRecord) ([]ObjectRef, error) {
	refs := make([]ObjectRef, 0, len(records))
	for i, rec := range records {
		ref, err := decodeRef(rec.S3.Bucket.Name, rec.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("Records[%d]: %w", i, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func fromDetail(raw json.RawMessage) ([]ObjectRef, error) {
	var d objectCreatedDetail
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: detail: %w", ErrMalformedEvent, err)
	}
	ref, err := decodeRef(d.Bucket.Name, d.Object.Key)
	if err != nil {
		return nil, err
	}
	return []ObjectRef{ref}, nil
}

func decodeRef(bucket, key string) (ObjectRef, error) {
	if bucket == "" || key == "" {
		return ObjectRef{}, fmt.Errorf("%w: missing bucket/key", ErrMalformedEvent)
	}
	decoded, err := url.QueryUnescape(key)
	if err != nil {
		return ObjectRef{}, fmt.Errorf("%w: key %q: %w", ErrMalformedEvent, key, err)
	}
	return ObjectRef{Bucket: bucket, Key: decoded}, nil
}
