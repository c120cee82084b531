package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Object name stems for the two document kinds.
const (
	KindFindings    = "cc72-findings"
	KindRemediation = "cc72-remediation"
)

const keyTimeLayout = "20060102T150405Z"

// NewKey returns {prefix}/{kind}-{yyyymmddThhmmssZ}-{8hex}.json. The random
// suffix keeps keys unique when two runs land in the same second.
func NewKey(prefix, kind string, now time.Time) string {
	return fmt.Sprintf("%s/%s-%s-%s.json",
		strings.TrimSuffix(prefix, "/"), kind, now.UTC().Format(keyTimeLayout), randomSuffix())
}

// UnderPrefix reports whether key lives directly or indirectly under prefix.
func UnderPrefix(key, prefix string) bool {
	p := strings.TrimSuffix(prefix, "/")
	if p == "" {
		return true
	}
	return strings.HasPrefix(key, p+"/")
}

func randomSuffix() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:4])
}
