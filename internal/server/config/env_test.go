package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv_OverridesOnlyPresentVariables(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	t.Setenv("CUSTOMER_DB_SECRET", "seed")
	t.Setenv("CUSTOMER_DB_PREVIOUS_SECRETS", "old1,old2")
	t.Setenv("SESSION_TTL", "12h")
	t.Setenv("MONTHLY_PRICE", "9.5")

	c := &Config{AdminLicenseKey: "PP-KEEP"}
	require.NoError(t, parseEnv(c))

	assert.Equal(t, "seed", c.EncryptionSecret)
	assert.Equal(t, []string{"old1", "old2"}, c.PreviousEncryptionSecrets)
	assert.Equal(t, 12*time.Hour, c.SessionTTL)
	assert.Equal(t, 9.5, c.MonthlyPrice)
	assert.Equal(t, "PP-KEEP", c.AdminLicenseKey)
}

func TestParseEnv_DotenvFile(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() {
		os.Args = origArgs
		_ = os.Unsetenv("PP_TEST_ONLY_FROM_FILE")
		_ = os.Unsetenv("ADMIN_FULL_NAME")
	})

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("ADMIN_FULL_NAME=Root Admin\nPP_TEST_ONLY_FROM_FILE=1\n"), 0o600))
	os.Args = []string{"testbin", "-env-file", path}

	c := &Config{}
	require.NoError(t, parseEnv(c))
	assert.Equal(t, "Root Admin", c.AdminFullName)
}

func TestParseEnv_MissingExplicitFile(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin", "-env-file", filepath.Join(t.TempDir(), "absent.env")}

	require.Error(t, parseEnv(&Config{}))
}

func TestParseEnv_BadValue(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}
	t.Setenv("SMTP_PORT", "not-a-number")

	require.Error(t, parseEnv(&Config{}))
}
