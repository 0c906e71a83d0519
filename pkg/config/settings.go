package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read into Settings,
// e.g. CLOUDRECONCILE_PROJECT or CLOUDRECONCILE_LOG_LEVEL.
const EnvPrefix = "CLOUDRECONCILE"

const (
	OutputYAML = "yaml"
	OutputJSON = "json"
)

// Settings are the runtime options of the command line tool. They are not part
// of the declarative document.
type Settings struct {
	ProjectID  string
	Check      bool
	EnableAPIs bool
	LogLevel   zerolog.Level
	Output     string
	ConfigPath string
}

// AddFlags registers the persistent flags every subcommand shares.
func AddFlags(flags *pflag.FlagSet) {
	flags.String("project", "", "Default GCP project ID for resources that do not name one")
	flags.Bool("check", false, "Report what would change without changing anything")
	flags.Bool("enable-apis", false, "Enable the service APIs the resources need before reconciling")
	flags.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.String("output", OutputYAML, "Report format (yaml or json)")
}

// NewViper returns a viper instance bound to flags and to the environment.
// Flags set on the command line win over the environment.
func NewViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	return v, nil
}

// LoadSettings reads and validates Settings from v.
func LoadSettings(v *viper.Viper) (Settings, error) {
	s := Settings{
		ProjectID:  v.GetString("project"),
		Check:      v.GetBool("check"),
		EnableAPIs: v.GetBool("enable-apis"),
		Output:     strings.ToLower(v.GetString("output")),
		ConfigPath: v.GetString("config"),
	}

	level, err := zerolog.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return Settings{}, fmt.Errorf("invalid log level: %w", err)
	}
	s.LogLevel = level

	switch s.Output {
	case OutputYAML, OutputJSON:
	default:
		return Settings{}, fmt.Errorf("unsupported output format '%s'", s.Output)
	}
	return s, nil
}
