package config

import (
	"context"
	"os"
	"testing"
)

// TestEnvVarProviderSatisfiesSecretProvider verifies that EnvVarProvider
// implements the SecretProvider interface at compile time.
func TestEnvVarProviderSatisfiesSecretProvider(t *testing.T) {
	var _ SecretProvider = (*EnvVarProvider)(nil)
	var _ SecretProvider = NewEnvVarProvider()
}

// TestEnvVarProviderReturnsSetVariables verifies that GetParametersBatch
// returns values for environment variables that are set.
func TestEnvVarProviderReturnsSetVariables(t *testing.T) {
	const (
		key1 = "DEVMINT_TEST_SECRET_A"
		key2 = "DEVMINT_TEST_SECRET_B"
		val1 = "value-alpha"
		val2 = "value-beta"
	)

	t.Setenv(key1, val1)
	t.Setenv(key2, val2)

	provider := NewEnvVarProvider()
	result, err := provider.GetParametersBatch(context.Background(), []string{key1, key2})
	if err != nil {
		t.Fatalf("GetParametersBatch returned unexpected error: %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result))
	}
	if got := result[key1]; got != val1 {
		t.Errorf("result[%q] = %q, want %q", key1, got, val1)
	}
	if got := result[key2]; got != val2 {
		t.Errorf("result[%q] = %q, want %q", key2, got, val2)
	}
}

// TestEnvVarProviderOmitsMissingVariables verifies that GetParametersBatch
// silently omits keys that are not set in the environment.
func TestEnvVarProviderOmitsMissingVariables(t *testing.T) {
	const missingKey = "DEVMINT_TEST_DEFINITELY_NOT_SET_XYZ"
	os.Unsetenv(missingKey)

	provider := NewEnvVarProvider()
	result, err := provider.GetParametersBatch(context.Background(), []string{missingKey})
	if err != nil {
		t.Fatalf("GetParametersBatch returned unexpected error: %v", err)
	}

	if len(result) != 0 {
		t.Errorf("expected empty result for missing key, got %v", result)
	}
}

// TestEnvVarProviderMixedKeys verifies that set and missing keys can be
// requested in the same batch without error.
func TestEnvVarProviderMixedKeys(t *testing.T) {
	const (
		setKey     = "DEVMINT_TEST_SECRET_SET"
		missingKey = "DEVMINT_TEST_SECRET_MISSING"
	)

	t.Setenv(setKey, "present")
	os.Unsetenv(missingKey)

	provider := NewEnvVarProvider()
	result, err := provider.GetParametersBatch(context.Background(), []string{setKey, missingKey})
	if err != nil {
		t.Fatalf("GetParametersBatch returned unexpected error: %v", err)
	}

	if len(result) != 1 {
		t.Fatalf("expected 1 result, got %d: %v", len(result), result)
	}
	if got := result[setKey]; got != "present" {
		t.Errorf("result[%q] = %q, want %q", setKey, got, "present")
	}
}

// TestEnvVarProviderEmptyValue verifies that a variable set to the empty
// string is still returned, since set-but-empty differs from unset.
func TestEnvVarProviderEmptyValue(t *testing.T) {
	const key = "DEVMINT_TEST_SECRET_EMPTY"
	t.Setenv(key, "")

	provider := NewEnvVarProvider()
	result, err := provider.GetParametersBatch(context.Background(), []string{key})
	if err != nil {
		t.Fatalf("GetParametersBatch returned unexpected error: %v", err)
	}

	val, ok := result[key]
	if !ok {
		t.Fatal("expected empty-valued key to be present in result")
	}
	if val != "" {
		t.Errorf("result[%q] = %q, want empty string", key, val)
	}
}
