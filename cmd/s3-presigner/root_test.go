package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/s3-presigner/pkg/presigner/config"
)

func TestComplete_FlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presigner.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: 127.0.0.1\nport: 9000\n"), 0o600))

	o := NewServeOptions()
	cmd := NewRootCommandWithOptions(o)
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--port", "9999", "--legacy-status", "-q"}))

	require.NoError(t, o.Complete(cmd, nil))
	require.NoError(t, o.Validate())

	assert.Equal(t, "127.0.0.1", o.config.Host)
	assert.Equal(t, 9999, o.config.Port)
	assert.True(t, o.config.LegacyStatus)
	assert.True(t, o.config.Quiet)
	assert.False(t, o.config.SkipCredentialCheck)
}

func TestComplete_InvalidFlag(t *testing.T) {
	o := NewServeOptions()
	cmd := NewRootCommandWithOptions(o)
	require.NoError(t, cmd.ParseFlags([]string{"--port", "0"}))

	require.NoError(t, o.Complete(cmd, nil))
	err := o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestValidate_WithoutComplete(t *testing.T) {
	assert.Error(t, NewServeOptions().Validate())
}

func TestNewLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := newLogger(&config.ServerConfig{LogFormat: "json", LogLevel: "info"}, &buf)
		require.NoError(t, err)

		logger.Debug("hidden")
		logger.Info("shown", "key", "value")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), `"msg":"shown"`)
		assert.Contains(t, buf.String(), `"key":"value"`)
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := newLogger(&config.ServerConfig{LogFormat: "text", LogLevel: "debug"}, &buf)
		require.NoError(t, err)

		logger.Debug("visible")
		assert.Contains(t, buf.String(), "msg=visible")
	})

	t.Run("bad level", func(t *testing.T) {
		_, err := newLogger(&config.ServerConfig{LogFormat: "text", LogLevel: "chatty"}, &bytes.Buffer{})
		assert.Error(t, err)
	})
}

func TestRun_MissingCredentials(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	for _, key := range []string{
		"AWS_PROFILE",
		"AWS_ACCESS_KEY_ID",
		"AWS_SECRET_ACCESS_KEY",
		"AWS_SESSION_TOKEN",
		"AWS_WEB_IDENTITY_TOKEN_FILE",
		"AWS_CONTAINER_CREDENTIALS_RELATIVE_URI",
		"AWS_CONTAINER_CREDENTIALS_FULL_URI",
	} {
		t.Setenv(key, "")
	}

	var errOut bytes.Buffer
	o := NewServeOptions()
	o.errOut = &errOut
	cmd := NewRootCommandWithOptions(o)
	cmd.SetArgs([]string{"--port", "18080"})

	err := cmd.ExecuteContext(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "AWS credentials test failed")
	assert.Contains(t, errOut.String(), "aws configure")
	assert.Contains(t, errOut.String(), "AWS_ACCESS_KEY_ID")
	assert.Contains(t, errOut.String(), "~/.aws/credentials")
}
