package capability

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// ErrUnresolved is returned when a mandatory requirement has no provider.
var ErrUnresolved = errors.New("requirement not satisfied")

// UnresolvedError names the requirement that could not be wired.
type UnresolvedError struct {
	Requirement Requirement
}

func (e *UnresolvedError) Error() string {
	msg := fmt.Sprintf("requirement not satisfied: namespace %q", e.Requirement.Namespace)
	if len(e.Requirement.Attributes) > 0 {
		msg += fmt.Sprintf(" attributes %v", e.Requirement.Attributes)
	}
	if e.Requirement.Version != "" {
		msg += fmt.Sprintf(" version %q", e.Requirement.Version)
	}
	return msg
}

// Is implements error matching for errors.Is() checks.
func (e *UnresolvedError) Is(target error) bool {
	return target == ErrUnresolved
}

// Resolve wires each requirement to a provided capability. When several
// capabilities match, the one with the highest version wins. Optional
// requirements without a provider are left unwired.
func Resolve(reqs []Requirement, provided []Capability) ([]Wire, error) {
	var wires []Wire
	for _, req := range reqs {
		var constraint *semver.Constraints
		if req.Version != "" {
			c, err := semver.NewConstraint(req.Version)
			if err != nil {
				return nil, fmt.Errorf("invalid version constraint %q: %w", req.Version, err)
			}
			constraint = c
		}

		candidates := matching(req, constraint, provided)
		if len(candidates) == 0 {
			if req.Optional {
				continue
			}
			return nil, &UnresolvedError{Requirement: req}
		}
		wires = append(wires, Wire{Requirement: req, Capability: candidates[0]})
	}
	return wires, nil
}

func matching(req Requirement, constraint *semver.Constraints, provided []Capability) []Capability {
	var out []Capability
	for _, c := range provided {
		if c.Namespace != req.Namespace || !attributesMatch(req.Attributes, c.Attributes) {
			continue
		}
		if constraint != nil {
			v := capabilityVersion(c)
			if v == nil || !constraint.Check(v) {
				continue
			}
		}
		out = append(out, c)
	}

	// Highest version first; unversioned capabilities keep declaration order
	// after the versioned ones.
	sort.SliceStable(out, func(i, j int) bool {
		vi, vj := capabilityVersion(out[i]), capabilityVersion(out[j])
		switch {
		case vi == nil:
			return false
		case vj == nil:
			return true
		default:
			return vi.GreaterThan(vj)
		}
	})
	return out
}

func attributesMatch(want map[string]string, have map[string]any) bool {
	for k, v := range want {
		got, ok := have[k]
		if !ok || fmt.Sprint(got) != v {
			return false
		}
	}
	return true
}

func capabilityVersion(c Capability) *semver.Version {
	raw, ok := c.Attributes[VersionAttribute]
	if !ok {
		return nil
	}
	v, err := semver.NewVersion(fmt.Sprint(raw))
	if err != nil {
		return nil
	}
	return v
}
