package cmd

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix prefixes the environment variables read for flags, e.g.
// RSTISIM_SNAPSHOT_DB for --snapshot-db.
const envPrefix = "RSTISIM"

// loadSettings returns the settings of cmd. A flag given on the command line
// wins over the environment, which wins over the settings file, which wins
// over the flag default. The log level is applied as a side effect.
func loadSettings(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}
	if path := v.GetString("settings"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading settings %s: %w", path, err)
		}
		logrus.Debugf("settings read from %s", path)
	}

	level, err := logrus.ParseLevel(v.GetString("log"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %s", v.GetString("log"))
	}
	logrus.SetLevel(level)

	if v.GetString("config") == "" {
		return nil, fmt.Errorf("model configuration not provided, use --config")
	}
	return v, nil
}

// mustLoadSettings is loadSettings for cobra Run functions.
func mustLoadSettings(cmd *cobra.Command) *viper.Viper {
	v, err := loadSettings(cmd)
	if err != nil {
		logrus.Fatalf("%v", err)
	}
	return v
}
