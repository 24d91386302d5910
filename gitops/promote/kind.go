package promote

import (
	"fmt"
	"strings"
)

// Kind selects a promotion workflow.
type Kind string

const (
	// KindFeatureToDevelop merges a feature branch
	// into develop.
	KindFeatureToDevelop Kind = "feature_to_develop"
	// KindHotfixToMainAndDev merges a hotfix into
	// production, then into develop.
	KindHotfixToMainAndDev Kind = "hotfix_to_main_and_dev"
	// KindPromoteRelease merges a release branch into
	// production, optionally after a hold and with a
	// tag, then into develop.
	KindPromoteRelease Kind = "promote_release"
)

// Kinds lists every supported Kind.
func Kinds() []Kind {
	return []Kind{
		KindFeatureToDevelop,
		KindHotfixToMainAndDev,
		KindPromoteRelease,
	}
}

// ParseKind maps s to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}

	names := make([]string, 0, len(Kinds()))
	for _, k := range Kinds() {
		names = append(names, string(k))
	}

	return "", fmt.Errorf(
		"unknown promotion kind %q (want one of %s)",
		s, strings.Join(names, ", "),
	)
}

// stages returns the number of merge stages a
// successful run of k goes through.
func (k Kind) stages() int {
	if k == KindFeatureToDevelop {
		return 1
	}

	return 2
}
