package procio

import "os"

// passthroughVars are the only ambient variables forwarded to worker
// processes, and only when actually set.
var passthroughVars = []string{"LANG", "PYTORCH_ENABLE_MPS_FALLBACK"}

// BaseEnv returns the minimal environment for worker processes. The
// parent environment is deliberately not inherited; stray PYTHONPATH,
// PYTHONHOME, or virtualenv variables break the bundled runtime.
func BaseEnv() []string {
	env := []string{
		"PATH=/usr/bin:/bin:/usr/sbin:/sbin:/usr/local/bin:/opt/homebrew/bin",
	}
	for _, key := range passthroughVars {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			env = append(env, key+"="+v)
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		env = append(env, "HOME="+home)
	}
	if tmp := os.TempDir(); tmp != "" {
		env = append(env, "TMPDIR="+tmp)
	}
	return env
}
