package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"postgrator/internal/dirs"
	"postgrator/internal/logging"
	"postgrator/internal/model"
	"postgrator/internal/stream"
	"postgrator/internal/util"
)

// Config keys. Flags use the same names with '-' instead of '_'.
const (
	KeyServer               = "server"
	KeyTimeout              = "timeout"
	KeyUploadTimeout        = "upload_timeout"
	KeyPageSize             = "page_size"
	KeyNoUI                 = "no_ui"
	KeyLogLevel             = "log_level"
	KeyLogFormat            = "log_format"
	KeyLogLimit             = "log_limit"
	KeyReconnect            = "reconnect"
	KeyReconnectInterval    = "reconnect_interval"
	KeyReconnectMaxInterval = "reconnect_max_interval"
	KeyReconnectAttempts    = "reconnect_attempts"
	KeyGraceDelay           = "grace_delay"
)

const EnvPrefix = "POSTGRATOR"

// SetDefaults registers built-in defaults, the lowest precedence layer.
func SetDefaults() {
	viper.SetDefault(KeyServer, "http://localhost:8001")
	viper.SetDefault(KeyTimeout, 30*time.Second)
	viper.SetDefault(KeyUploadTimeout, time.Duration(0))
	viper.SetDefault(KeyPageSize, 100)
	viper.SetDefault(KeyNoUI, false)
	viper.SetDefault(KeyLogLevel, "warn")
	viper.SetDefault(KeyLogFormat, "text")
	viper.SetDefault(KeyLogLimit, 0)
	viper.SetDefault(KeyReconnect, string(model.ReconnectNone))
	viper.SetDefault(KeyReconnectInterval, 2*time.Second)
	viper.SetDefault(KeyReconnectMaxInterval, 30*time.Second)
	viper.SetDefault(KeyReconnectAttempts, 0)
	viper.SetDefault(KeyGraceDelay, 1500*time.Millisecond)
}

// Init wires Viper with config paths, env, defaults, and flag bindings.
// Precedence: flag > env > config file > default. A missing config file is
// not an error; a malformed one is.
func Init(root *cobra.Command) error {
	_ = dirs.EnsureAll()

	if cfgDir, err := dirs.ConfigDir(); err == nil {
		viper.AddConfigPath(cfgDir)
	}
	viper.SetConfigName("config") // supports config.{yaml|yml|json|toml}

	// Environment variables: POSTGRATOR_*
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	SetDefaults()
	if err := BindFlags(root.PersistentFlags()); err != nil {
		return err
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// BindFlags binds every flag whose name maps onto a config key.
func BindFlags(fs *pflag.FlagSet) error {
	for _, key := range []string{
		KeyServer, KeyTimeout, KeyUploadTimeout, KeyPageSize, KeyNoUI, KeyLogLevel, KeyLogFormat, KeyLogLimit,
		KeyReconnect, KeyReconnectInterval, KeyReconnectMaxInterval, KeyReconnectAttempts, KeyGraceDelay,
	} {
		f := fs.Lookup(strings.ReplaceAll(key, "_", "-"))
		if f == nil {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// Load resolves the effective runtime options.
func Load() (model.Options, error) {
	server, err := util.NormalizeServerURL(viper.GetString(KeyServer))
	if err != nil {
		return model.Options{}, err
	}
	mode, err := stream.ParseReconnectMode(viper.GetString(KeyReconnect))
	if err != nil {
		return model.Options{}, err
	}

	opts := model.Options{
		Server:   server,
		Timeout:       viper.GetDuration(KeyTimeout),
		UploadTimeout: viper.GetDuration(KeyUploadTimeout),
		PageSize:      viper.GetInt(KeyPageSize),
		NoUI:          viper.GetBool(KeyNoUI),
		LogLimit:      viper.GetInt(KeyLogLimit),
		Grace:         viper.GetDuration(KeyGraceDelay),
		Reconnect: model.ReconnectOptions{
			Mode:        mode,
			Interval:    viper.GetDuration(KeyReconnectInterval),
			MaxInterval: viper.GetDuration(KeyReconnectMaxInterval),
			MaxAttempts: viper.GetInt(KeyReconnectAttempts),
		},
	}

	switch {
	case opts.PageSize <= 0:
		return model.Options{}, fmt.Errorf("invalid %s: %d (must be > 0)", KeyPageSize, opts.PageSize)
	case opts.Timeout < 0:
		return model.Options{}, fmt.Errorf("invalid %s: %s", KeyTimeout, opts.Timeout)
	case opts.UploadTimeout < 0:
		return model.Options{}, fmt.Errorf("invalid %s: %s", KeyUploadTimeout, opts.UploadTimeout)
	case opts.LogLimit < 0:
		return model.Options{}, fmt.Errorf("invalid %s: %d", KeyLogLimit, opts.LogLimit)
	case opts.Grace < 0:
		return model.Options{}, fmt.Errorf("invalid %s: %s", KeyGraceDelay, opts.Grace)
	case opts.Reconnect.MaxAttempts < 0:
		return model.Options{}, fmt.Errorf("invalid %s: %d", KeyReconnectAttempts, opts.Reconnect.MaxAttempts)
	}
	return opts, nil
}

// Logging returns the logger settings. File is filled in by the caller when
// the TUI takes over the terminal.
func Logging() logging.Config {
	return logging.Config{
		Level:  viper.GetString(KeyLogLevel),
		Format: viper.GetString(KeyLogFormat),
	}
}
