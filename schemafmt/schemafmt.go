// Package schemafmt validates the identity fields of serialized tree
// documents: the document kind and the schema_version.
package schemafmt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DocumentKind identifies supported top-level document kinds.
type DocumentKind string

const (
	KindBehaviorTree DocumentKind = "behavior_tree"

	LegacyKindBehaviorTree = "behavior-tree"

	SupportedSchemaMajor = 1

	CurrentSchemaVersion = "1.0.0"
)

var semverPattern = regexp.MustCompile(
	`^(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)` +
		`(?:-((?:0|[1-9][0-9]*|[0-9A-Za-z-]*[A-Za-z-][0-9A-Za-z-]*)` +
		`(?:\.(?:0|[1-9][0-9]*|[0-9A-Za-z-]*[A-Za-z-][0-9A-Za-z-]*))*))?` +
		`(?:\+([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?$`,
)

// NormalizeKind validates and canonicalizes a document kind string.
// Returns the canonical kind, whether a legacy alias was used, and any
// validation error. An empty kind defaults to behavior_tree.
func NormalizeKind(raw string) (DocumentKind, bool, error) {
	kind := strings.TrimSpace(raw)

	switch kind {
	case "", string(KindBehaviorTree):
		return KindBehaviorTree, false, nil
	case LegacyKindBehaviorTree:
		return KindBehaviorTree, true, nil
	default:
		return "", false, fmt.Errorf("invalid kind %q", raw)
	}
}

// NormalizeVersion fills in the current schema version when the document
// carries none, then validates the result.
func NormalizeVersion(version string) (string, error) {
	v := strings.TrimSpace(version)
	if v == "" {
		v = CurrentSchemaVersion
	}
	if err := ValidateSchemaVersion(v, SupportedSchemaMajor); err != nil {
		return "", err
	}
	return v, nil
}

// ValidateSchemaVersion ensures schema_version is a valid SemVer 2.0.0 string
// and that its MAJOR version is supported.
func ValidateSchemaVersion(version string, supportedMajor int) error {
	v := strings.TrimSpace(version)
	if v == "" {
		return fmt.Errorf("schema_version is required")
	}

	match := semverPattern.FindStringSubmatch(v)
	if match == nil {
		return fmt.Errorf("schema_version %q must be a valid semantic version (MAJOR.MINOR.PATCH)", version)
	}

	major, err := strconv.Atoi(match[1])
	if err != nil {
		return fmt.Errorf("parsing schema_version major: %w", err)
	}
	if major != supportedMajor {
		return fmt.Errorf("schema_version %q has unsupported major %d (supported: %d.x.x)", version, major, supportedMajor)
	}

	return nil
}
