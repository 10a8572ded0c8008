package procio

import (
	"strings"
	"testing"
)

// TestBaseEnvPassesThroughOnlyWhenSet verifies that ambient variables
// are forwarded when present and omitted when absent, and that the
// wider parent environment never leaks in.
func TestBaseEnvPassesThroughOnlyWhenSet(t *testing.T) {
	t.Setenv("LANG", "ru_RU.UTF-8")
	t.Setenv("PYTORCH_ENABLE_MPS_FALLBACK", "1")
	t.Setenv("PYTHONPATH", "/somewhere/else")

	env := BaseEnv()
	has := func(entry string) bool {
		for _, e := range env {
			if e == entry {
				return true
			}
		}
		return false
	}

	if !has("LANG=ru_RU.UTF-8") {
		t.Errorf("LANG not passed through: %v", env)
	}
	if !has("PYTORCH_ENABLE_MPS_FALLBACK=1") {
		t.Errorf("GPU fallback variable not passed through: %v", env)
	}
	for _, e := range env {
		if strings.HasPrefix(e, "PYTHONPATH=") {
			t.Errorf("parent environment leaked into worker env: %s", e)
		}
	}
}

// TestBaseEnvOmitsUnsetVariables verifies absent variables stay absent.
func TestBaseEnvOmitsUnsetVariables(t *testing.T) {
	t.Setenv("PYTORCH_ENABLE_MPS_FALLBACK", "")

	for _, e := range BaseEnv() {
		if strings.HasPrefix(e, "PYTORCH_ENABLE_MPS_FALLBACK=") {
			t.Errorf("empty variable was forwarded: %s", e)
		}
	}
}
