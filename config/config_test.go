package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CB_TEST_STR", "hello")
	t.Setenv("CB_TEST_INT", "42")
	t.Setenv("CB_TEST_BAD", "x")

	require.Equal(t, "hello", StringEnv("CB_TEST_STR", "def"))
	require.Equal(t, "def", StringEnv("CB_TEST_MISSING", "def"))
	require.Equal(t, 42, IntEnv("CB_TEST_INT", 1))
	require.Equal(t, 1, IntEnv("CB_TEST_BAD", 1))
	require.Equal(t, 7, IntEnv("CB_TEST_MISSING", 7))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(p, []byte("CB_DOTENV_VALUE=from-file\n"), 0o644))
	t.Setenv("CB_DOTENV_VALUE", "")
	os.Unsetenv("CB_DOTENV_VALUE")

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), p))
	require.Equal(t, "from-file", os.Getenv("CB_DOTENV_VALUE"))
}
