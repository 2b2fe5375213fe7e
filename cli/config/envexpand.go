// Package config handles heliwatch.yaml loading. File values are
// defaults; command flags override them.
package config

import (
	"os"
	"regexp"
	"strings"
)

// envRef matches ${VAR} and ${VAR:-fallback}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv substitutes environment references in a raw config file.
//
// ${VAR} becomes the value of VAR. ${VAR:-fallback} becomes the fallback
// when VAR is unset or empty. An unset VAR with no fallback becomes the
// empty string; whatever needed the value (an adapter URL, an S3 bucket)
// reports it when built.
func ExpandEnv(input string) string {
	refs := envRef.FindAllStringSubmatchIndex(input, -1)
	if len(refs) == 0 {
		return input
	}

	var b strings.Builder
	b.Grow(len(input))
	last := 0
	for _, ref := range refs {
		b.WriteString(input[last:ref[0]])
		last = ref[1]

		name := input[ref[2]:ref[3]]
		if v := os.Getenv(name); v != "" {
			b.WriteString(v)
			continue
		}
		// ref[6] is -1 when no fallback group matched.
		if ref[6] >= 0 {
			b.WriteString(input[ref[6]:ref[7]])
		}
	}
	b.WriteString(input[last:])
	return b.String()
}
