package config_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-cloud-reconciler/pkg/config"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.AddFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestLoadSettings_Defaults(t *testing.T) {
	v, err := config.NewViper(newFlags(t))
	require.NoError(t, err)

	s, err := config.LoadSettings(v)
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, s.LogLevel)
	assert.Equal(t, config.OutputYAML, s.Output)
	assert.False(t, s.Check)
}

func TestLoadSettings_EnvironmentAndFlags(t *testing.T) {
	t.Setenv("CLOUDRECONCILE_PROJECT", "env-project")
	t.Setenv("CLOUDRECONCILE_LOG_LEVEL", "debug")
	t.Setenv("CLOUDRECONCILE_OUTPUT", "json")

	v, err := config.NewViper(newFlags(t, "--check", "--output", "YAML"))
	require.NoError(t, err)

	s, err := config.LoadSettings(v)
	require.NoError(t, err)
	assert.Equal(t, "env-project", s.ProjectID)
	assert.Equal(t, zerolog.DebugLevel, s.LogLevel)
	assert.True(t, s.Check)
	assert.Equal(t, config.OutputYAML, s.Output, "flags win over the environment")
}

func TestLoadSettings_Invalid(t *testing.T) {
	v, err := config.NewViper(newFlags(t, "--output", "xml"))
	require.NoError(t, err)
	_, err = config.LoadSettings(v)
	assert.Error(t, err)

	v, err = config.NewViper(newFlags(t, "--log-level", "loud"))
	require.NoError(t, err)
	_, err = config.LoadSettings(v)
	assert.Error(t, err)
}
