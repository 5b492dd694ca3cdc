package util

import (
	"os"
	"testing"
)

func TestRequireEnvMissing(t *testing.T) {
	os.Unsetenv("FAKE_ENV_VAR")
	varErrs := Errors{}
	RequireEnv("FAKE_ENV_VAR", &varErrs)
	if len(varErrs) == 0 {
		t.Errorf("should have received an error for an unset variable")
	}
}

func TestRequireEnvPresent(t *testing.T) {
	os.Setenv("SOME_SET_VAR", "value")
	defer os.Unsetenv("SOME_SET_VAR")
	varErrs := Errors{}
	if got := RequireEnv("SOME_SET_VAR", &varErrs); got != "value" {
		t.Errorf("expected \"value\", got %q", got)
	}
	if len(varErrs) != 0 {
		t.Errorf("unexpected errors: %v", varErrs)
	}
}

func TestEnvOrDefault(t *testing.T) {
	os.Unsetenv("UNSET_VAR")
	if got := EnvOrDefault("UNSET_VAR", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
}
