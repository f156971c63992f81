package main

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/geoknoesis/rdf-models/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var rootCmd = &cobra.Command{
	Use:   "rdfmodels",
	Short: "Manage sets of RDF/OWL models and their import closures",
	Long: `rdfmodels loads RDF/OWL models into a model set, resolves owl:imports
closures, normalizes URIs through the configured mapping rules and converts
models between Turtle and N-Triples.

Configuration is read from --config and may be overridden by RDFMODELS_*
environment variables (for example RDFMODELS_STORE_KIND) and flags.`,
	SilenceUsage: true,
}

func init() {
	defaults := config.DefaultConfig()
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to a YAML configuration file.")
	flags.String("log-level", defaults.Log.Level, "Log level: debug, info, warn or error.")
	flags.String("store", defaults.Store.Kind, "Quad store: memory or pebble.")
	flags.StringP("data", "d", defaults.Store.Dir, "Directory of the pebble store.")
	flags.Bool("metrics", false, "Print collected metrics to stderr on exit.")

	for key, flag := range map[string]string{
		"config":     "config",
		"log.level":  "log-level",
		"store.kind": "store",
		"store.dir":  "data",
		"metrics":    "metrics",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("rdfmodels")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// loadConfig layers the configuration file, then environment variables and
// flags that were set explicitly, over the defaults.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := viper.GetString("config"); path != "" {
		fromFile, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fromFile
	}
	overrides := &config.Config{}
	for key, dst := range map[string]*string{
		"log.level":          &overrides.Log.Level,
		"store.kind":         &overrides.Store.Kind,
		"store.dir":          &overrides.Store.Dir,
		"nats.url":           &overrides.NATS.URL,
		"load.save_strategy": &overrides.Load.SaveStrategy,
		"load.save_format":   &overrides.Load.SaveFormat,
	} {
		if viper.IsSet(key) {
			*dst = viper.GetString(key)
		}
	}
	if viper.IsSet("http.timeout") {
		overrides.HTTP.Timeout = viper.GetDuration("http.timeout")
	}
	cfg.Merge(overrides)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configureLogging(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "log level %q", level)
	}
	zcfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
