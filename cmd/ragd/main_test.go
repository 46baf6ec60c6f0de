package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/config"
)

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "ragd")
	assert.Contains(t, out.String(), "Version:    dev")
}

func TestRootFlags(t *testing.T) {
	cmd := newRootCmd()

	stdio := cmd.Flags().Lookup("stdio")
	require.NotNil(t, stdio)
	assert.Equal(t, "false", stdio.DefValue)

	require.NotNil(t, cmd.Flags().Lookup("config"))
}

func TestRun_MissingRequiredConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{"PORT", "SERVER_PORT", "OPENAI_MODEL", "EMBEDDINGS_MODEL", "DOCUMENTS_TABLE", "STORE_TABLE"} {
		t.Setenv(key, "")
	}

	err := run(context.Background(), &rootOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingRequired)
}

func TestInitLogger(t *testing.T) {
	cfg := &config.Config{
		Logging: config.LoggingConfig{Level: "debug", Format: "console"},
	}

	logger, err := initLogger(cfg, true)
	require.NoError(t, err)
	assert.NotNil(t, logger)

	cfg.Logging.Level = "loud"
	_, err = initLogger(cfg, false)
	assert.Error(t, err)
}
