package policy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pankaj-dahiya-devops/sgguard/internal/models"
)

// PortSet is either "match all ports" or a finite set of ports.
// The zero value matches nothing; use AllPorts or ParsePortSet.
type PortSet struct {
	all   bool
	ports map[int32]struct{}
}

// AllPorts returns a PortSet that matches every permission.
func AllPorts() PortSet { return PortSet{all: true} }

// NewPortSet returns a PortSet matching exactly the given ports.
func NewPortSet(ports ...int32) PortSet {
	s := PortSet{ports: make(map[int32]struct{}, len(ports))}
	for _, p := range ports {
		s.ports[p] = struct{}{}
	}
	return s
}

// ParsePortSet parses "ALL" (case-insensitive, or empty) or a comma-separated
// list of ports in 0..65535. Blank entries are ignored; anything else that is
// not a valid port is an error.
func ParsePortSet(raw string) (PortSet, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "ALL") {
		return AllPorts(), nil
	}
	s := PortSet{ports: make(map[int32]struct{})}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 65535 {
			return PortSet{}, fmt.Errorf("invalid port %q in %q", part, raw)
		}
		s.ports[int32(n)] = struct{}{}
	}
	if len(s.ports) == 0 {
		return PortSet{}, fmt.Errorf("no ports in %q", raw)
	}
	return s, nil
}

// All reports whether the set matches every port.
func (s PortSet) All() bool { return s.all }

// Ports returns the configured ports in ascending order (nil for ALL).
func (s PortSet) Ports() []int {
	if s.all {
		return nil
	}
	out := make([]int, 0, len(s.ports))
	for p := range s.ports {
		out = append(out, int(p))
	}
	sort.Ints(out)
	return out
}

// Filter returns the snapshot recorded in a FindingsDocument.
func (s PortSet) Filter() models.PortFilter {
	if s.all {
		return models.PortFilter{All: true}
	}
	return models.PortFilter{Ports: s.Ports()}
}

func (s PortSet) String() string { return s.Filter().String() }

// MatchesRange reports whether a permission with the given protocol and
// port range intersects the set.
//
//   - ALL matches everything.
//   - tcp/udp ("6"/"17") match when both ports are present and some
//     configured port p satisfies from <= p <= to.
//   - Anything else ("-1" all traffic, icmp, other protocol numbers) has no
//     port range and matches only ALL.
func (s PortSet) MatchesRange(protocol string, from, to *int32) bool {
	if s.all {
		return true
	}
	switch strings.ToLower(protocol) {
	case "tcp", "udp", "6", "17":
	default:
		return false
	}
	if from == nil || to == nil {
		return false
	}
	for p := range s.ports {
		if *from <= p && p <= *to {
			return true
		}
	}
	return false
}
