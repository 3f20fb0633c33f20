package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/dqlens-cli/internal/cde"
	"github.com/KaramelBytes/dqlens-cli/internal/compliance"
	"github.com/KaramelBytes/dqlens-cli/internal/recommend"
)

// Global configuration structure.
type Global struct {
	WorkspacesDir string        `mapstructure:"workspaces_dir" yaml:"workspaces_dir"`
	Log           LogConfig     `mapstructure:"log" yaml:"log"`
	Engine        EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Dataset       DatasetConfig `mapstructure:"dataset" yaml:"dataset"`
	Policy        PolicyConfig  `mapstructure:"policy" yaml:"policy"`
	Server        ServerConfig  `mapstructure:"server" yaml:"server"`
	History       HistoryConfig `mapstructure:"history" yaml:"history"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // json or console
}

type EngineConfig struct {
	CDE        cde.Config        `mapstructure:"cde" yaml:"cde"`
	Recommend  recommend.Config  `mapstructure:"recommend" yaml:"recommend"`
	Compliance compliance.Config `mapstructure:"compliance" yaml:"compliance"`
	Dashboard  DashboardConfig   `mapstructure:"dashboard" yaml:"dashboard"`
}

type DashboardConfig struct {
	TopN int `mapstructure:"top_n" yaml:"top_n"`
}

type DatasetConfig struct {
	MaxRows      int    `mapstructure:"max_rows" yaml:"max_rows"`
	Delimiter    string `mapstructure:"delimiter" yaml:"delimiter"`
	SampleValues int    `mapstructure:"sample_values" yaml:"sample_values"`
	SheetName    string `mapstructure:"sheet_name" yaml:"sheet_name"`
	SheetIndex   int    `mapstructure:"sheet_index" yaml:"sheet_index"`
	// NullValues overrides the cell spellings read as missing.
	NullValues []string `mapstructure:"null_values" yaml:"null_values,omitempty"`
}

type PolicyConfig struct {
	PDFToTextPath string `mapstructure:"pdftotext_path" yaml:"pdftotext_path"`
}

type ServerConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
	// Schedule is a cron spec for re-running checks; empty disables it.
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
}

type HistoryConfig struct {
	// Path is the SQLite file; empty disables run history.
	Path string `mapstructure:"path" yaml:"path"`
}

// Dir returns ~/.dqlens.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", eris.Wrap(err, "config: resolve home dir")
	}
	return filepath.Join(home, ".dqlens"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.dqlens/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "config: mkdir")
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "config: marshal yaml")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return eris.Wrap(err, "config: write")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	c := cde.DefaultConfig()
	v.SetDefault("engine.cde.completeness_weight", c.CompletenessWeight)
	v.SetDefault("engine.cde.distinct_weight", c.DistinctWeight)
	v.SetDefault("engine.cde.keyword_weight", c.KeywordWeight)
	v.SetDefault("engine.cde.threshold", c.Threshold)
	v.SetDefault("engine.cde.id_ratio", c.IDRatio)
	v.SetDefault("engine.cde.enum_max", c.EnumMax)
	v.SetDefault("engine.cde.vocabulary", c.Vocabulary)

	r := recommend.DefaultConfig()
	v.SetDefault("engine.recommend.range_margin", r.RangeMargin)
	v.SetDefault("engine.recommend.enum_ratio", r.EnumRatio)
	v.SetDefault("engine.recommend.unique_ratio", r.UniqueRatio)
	v.SetDefault("engine.recommend.max_allowed_values", r.MaxAllowedValues)

	m := compliance.DefaultConfig()
	v.SetDefault("engine.compliance.threshold", m.Threshold)
	v.SetDefault("engine.compliance.min_tokens", m.MinTokens)
	v.SetDefault("engine.compliance.stop_words", []string{})

	v.SetDefault("engine.dashboard.top_n", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("dataset.max_rows", 1_000_000)
	v.SetDefault("dataset.delimiter", "")
	v.SetDefault("dataset.sample_values", 10)
	v.SetDefault("dataset.sheet_name", "")
	v.SetDefault("dataset.sheet_index", 1)
	v.SetDefault("dataset.null_values", []string{})

	v.SetDefault("policy.pdftotext_path", "pdftotext")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.schedule", "")

	v.SetDefault("history.path", "")
	v.SetDefault("workspaces_dir", "")
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file (cfgFile or ~/.dqlens/config.yaml) > defaults.
// Env keys use the DQLENS prefix with dots as underscores, e.g.
// DQLENS_ENGINE_CDE_THRESHOLD.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("DQLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if c.WorkspacesDir == "" {
		c.WorkspacesDir = filepath.Join(dir, "workspaces")
	}
	return &c, nil
}

// InitLogger initializes the global zap logger. Logs go to stderr so command
// output on stdout stays machine readable.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		l, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return eris.Wrap(err, "config: parse log level")
		}
		level = l
	}
	zapCfg.Level.SetLevel(level)
	zapCfg.OutputPaths = []string{"stderr"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
