package batch

import (
	"fmt"
	"strings"
)

// Policy decides what Run installs when some transforms fail.
type Policy string

const (
	// PolicyAllOrNothing installs only when every record succeeded.
	PolicyAllOrNothing Policy = "all-or-nothing"
	// PolicyPartial installs successes and keeps failed records unchanged.
	PolicyPartial Policy = "partial"
)

func ParsePolicy(raw string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyAllOrNothing:
		return PolicyAllOrNothing, nil
	case PolicyPartial:
		return PolicyPartial, nil
	default:
		return "", fmt.Errorf("unknown batch policy %q", raw)
	}
}
