package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFile drops an INI credential file into a temp dir and returns its path.
func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "creds.cnf")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Full(t *testing.T) {
	t.Parallel()

	p := writeFile(t, `
[client]
user     = app
password = s3cret
host     = db.internal
port     = 3307
`)
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "app", c.User)
	assert.Equal(t, "s3cret", c.Password)
	assert.Equal(t, "db.internal", c.Host)
	assert.Equal(t, 3307, c.Port)
	assert.Empty(t, c.DSN)
}

func TestLoad_DefaultsApply(t *testing.T) {
	t.Parallel()

	p := writeFile(t, `
[client]
user     = app
password = s3cret
`)
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", c.Host)
	assert.Equal(t, 3306, c.Port)
}

func TestLoad_DSNPassthrough(t *testing.T) {
	t.Parallel()

	p := writeFile(t, `
[client]
user = app
dsn  = file:shuffle.db?cache=shared
`)
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "file:shuffle.db?cache=shared", c.DSN)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.cnf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read credentials")
}

func TestLoad_MissingUser(t *testing.T) {
	t.Parallel()

	p := writeFile(t, `
[client]
password = s3cret
host     = localhost
`)
	_, err := Load(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user is required")
	// The password value must never leak into error text.
	assert.NotContains(t, err.Error(), "s3cret")
}

func TestLoad_BadPort(t *testing.T) {
	t.Parallel()

	p := writeFile(t, `
[client]
user = app
port = 99999
`)
	_, err := Load(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestCredentials_StringRedactsPassword(t *testing.T) {
	t.Parallel()

	c := Credentials{User: "app", Password: "hunter2", Host: "h", Port: 3306}
	s := c.String()
	assert.NotContains(t, s, "hunter2")
	assert.True(t, strings.Contains(s, "<redacted>"), "got %q", s)

	c.Password = ""
	assert.Contains(t, c.String(), "<empty>")
}

func TestDefaultPath_EnvOverride(t *testing.T) {
	t.Setenv(EnvDefaultsFile, "/tmp/alt.cnf")
	assert.Equal(t, "/tmp/alt.cnf", DefaultPath())
}
