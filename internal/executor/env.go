package executor

import (
	"os"
	"strings"

	"github.com/ztroop/zephyr/internal/config"
)

// ResolveEnv builds the child environment: the daemon's own environment
// followed by the configured entries in their configured order.
//
// A value of the form "$NAME" is substituted from the process environment at
// call time. Unresolvable references pass through as the literal "$NAME"
// rather than failing the command (best-effort substitution).
func ResolveEnv(entries []config.EnvVar, lookup func(string) (string, bool)) []string {
	env := environ()
	for _, e := range entries {
		env = append(env, e.Name+"="+resolveValue(e.Value, lookup))
	}
	return env
}

func environ() []string { return os.Environ() }

func resolveValue(v string, lookup func(string) (string, bool)) string {
	if !strings.HasPrefix(v, "$") || len(v) < 2 {
		return v
	}
	if resolved, ok := lookup(v[1:]); ok {
		return resolved
	}
	return v
}
