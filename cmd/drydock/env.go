package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CZERTAINLY/Drydock/internal/model"
)

// bindEnv makes DRYDOCK_* environment variables and the override flags
// visible through v. DRYDOCK_PASSWORD keeps the registry password out of
// the config file.
func bindEnv(v *viper.Viper, cmd *cobra.Command) {
	v.SetEnvPrefix("DRYDOCK")
	v.AutomaticEnv()
	if err := v.BindPFlag("capacity", cmd.PersistentFlags().Lookup("capacity")); err != nil {
		panic(err)
	}
}

// applyEnv overrides the loaded configuration with values set in v.
func applyEnv(v *viper.Viper, cfg *model.Config) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"executable", &cfg.Executor.Executable},
		{"registry", &cfg.Executor.Registry},
		{"username", &cfg.Executor.Username},
		{"password", &cfg.Executor.Password},
		{"run_options", &cfg.Executor.RunOptions},
		{"workspace_root", &cfg.Executor.WorkspaceRoot},
		{"db", &cfg.Service.DB},
	}
	for _, s := range overrides {
		if v.IsSet(s.key) {
			*s.dst = v.GetString(s.key)
		}
	}
	if v.IsSet("authenticate_to_registry") {
		cfg.Executor.AuthenticateToRegistry = v.GetBool("authenticate_to_registry")
	}
	if v.IsSet("capacity") {
		if capacity := v.GetInt("capacity"); capacity > 0 {
			cfg.Executor.Capacity = capacity
		} else {
			slog.Warn("ignoring non positive capacity override", "capacity", capacity)
		}
	}
	if v.GetBool("verbose") {
		cfg.Service.Verbose = true
	}
}
