// Package env composes the environment handed to the supervised agent:
// the OS environment as base, supervisor-level variables on top, then the
// validated record from the agent's env file, which always wins.
package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

type Env struct {
	Var Var // supervisor-level variables (K->V)
	env Var // cached base from OS environment
}

func New() *Env {
	return &Env{Var: make(Var)}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	base := make(Var)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			k := kv[:i]
			if k == "" {
				continue
			}
			base[k] = kv[i+1:]
		}
	}
	e.env = base
}

// Set sets a supervisor-level variable K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// Unset removes a supervisor-level variable.
func (e *Env) Unset(k string) {
	if e.Var != nil {
		delete(e.Var, k)
	}
}

// Merge composes the final environment list in order:
// base = OS env (cached on first use), then e.Var, then each layer of
// "K=V" pairs, later layers overriding earlier ones. The validated agent
// record is passed as the last layer so its values always win over
// whatever the operator's shell carries. ${VAR} expansion is performed
// against the composed map (simple expansion, no recursion), and the
// result is sorted by key so launches are reproducible.
func (e *Env) Merge(layers ...[]string) []string {
	if e.env == nil {
		e.FromOS()
	}
	m := make(Var, len(e.env)+len(e.Var))
	for k, v := range e.env {
		m[k] = v
	}
	for k, v := range e.Var {
		if k == "" {
			continue
		}
		m[k] = v
	}
	for _, layer := range layers {
		for _, kv := range layer {
			i := strings.IndexByte(kv, '=')
			if i <= 0 { // skip malformed entries and empty keys
				continue
			}
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
