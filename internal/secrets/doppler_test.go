package secrets

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironmentWins(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "from-env")

	d := NewDopplerClient("loyalty", "dev")
	d.lookPath = func(string) (string, error) {
		t.Fatal("doppler should not be consulted")
		return "", nil
	}

	value, err := d.GetSecret("WEBHOOK_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-env", value)
}

func TestReadsFromCLI(t *testing.T) {
	d := NewDopplerClient("loyalty", "prd")
	d.lookPath = func(string) (string, error) { return "/usr/bin/doppler", nil }

	var gotArgs []string
	d.run = func(name string, args ...string) ([]byte, error) {
		gotArgs = args
		return []byte("s3cret\n"), nil
	}

	value, err := d.GetSecret("LOYALTY_TEST_ONLY_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", value)
	assert.Equal(t, []string{"secrets", "get", "LOYALTY_TEST_ONLY_SECRET", "--project", "loyalty", "--config", "prd", "--plain"}, gotArgs)
}

func TestFallbackWhenCLIMissing(t *testing.T) {
	d := NewDopplerClient("loyalty", "dev")
	d.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	assert.Equal(t, "fallback", d.GetSecretWithFallback("LOYALTY_TEST_ONLY_SECRET", "fallback"))
}

func TestEnvSource(t *testing.T) {
	t.Setenv("LOYALTY_TEST_ONLY_SECRET", "x")
	assert.Equal(t, "x", EnvSource{}.GetSecretWithFallback("LOYALTY_TEST_ONLY_SECRET", "y"))
	assert.Equal(t, "y", EnvSource{}.GetSecretWithFallback("LOYALTY_TEST_ONLY_MISSING", "y"))
}
