package secret

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnvStrict expands environment variables in s.
//
//   - $VAR and ${VAR} expand as with os.ExpandEnv.
//   - ${VAR} naming an unset variable is an error wrapping ErrMissingEnv.
//   - $$ is a literal $.
func ExpandEnvStrict(s string) (string, error) {
	const dollar = "\x00VSPHEREBROKER_DOLLAR\x00"
	s = strings.ReplaceAll(s, "$$", dollar)

	var missing []string
	seen := make(map[string]bool)
	for _, m := range envVarPattern.FindAllStringSubmatch(s, -1) {
		key := m[1]
		if _, ok := os.LookupEnv(key); !ok && !seen[key] {
			seen[key] = true
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}

	return strings.ReplaceAll(os.ExpandEnv(s), dollar, "$"), nil
}
