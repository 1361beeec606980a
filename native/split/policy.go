package split

import (
	"fmt"
	"strings"
)

// Policy controls how a single release treats a zero owed amount. Batch
// releases always skip zero-due payees regardless of policy.
type Policy uint8

const (
	// PolicyStrict fails a zero-due release with ErrNothingDue.
	PolicyStrict Policy = iota
	// PolicyLenient turns a zero-due release into a silent no-op.
	PolicyLenient
)

// ParsePolicy maps a configuration string onto a policy. The empty string
// selects the strict default.
func ParsePolicy(value string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "strict":
		return PolicyStrict, nil
	case "lenient":
		return PolicyLenient, nil
	default:
		return PolicyStrict, fmt.Errorf("split: unknown release policy %q", value)
	}
}

func (p Policy) String() string {
	switch p {
	case PolicyLenient:
		return "lenient"
	default:
		return "strict"
	}
}
