package cmd

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/jobmatch/internal/coldstart"
	"github.com/spigell/jobmatch/internal/nudge"
	"github.com/spigell/jobmatch/internal/oracle"
	"github.com/spigell/jobmatch/internal/recommend"
	"github.com/spigell/jobmatch/internal/scoring"
	"github.com/spigell/jobmatch/internal/vecstore"
)

const (
	app       = "jobmatch"
	envPrefix = "JOBMATCH"

	defaultDimension = 64
)

type Config struct {
	DataFile    string             `mapstructure:"data-file"`
	VectorStore *VectorStoreConfig `mapstructure:"vector-store"`
	Oracle      *OracleConfig      `mapstructure:"oracle"`
	Scoring     scoring.Config     `mapstructure:"scoring"`
	ColdStart   coldstart.Config   `mapstructure:"coldstart"`
	Nudge       nudge.Config       `mapstructure:"nudge"`
	Recommend   recommend.Config   `mapstructure:"recommend"`
}

type VectorStoreConfig struct {
	Backend   string        `mapstructure:"backend"`
	Dimension int           `mapstructure:"dimension"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Bolt      struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"bolt"`
	Postgres struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"postgres"`
}

type OracleConfig struct {
	Provider string        `mapstructure:"provider"`
	Timeout  time.Duration `mapstructure:"timeout"`
	OpenAI   *OpenAIConfig `mapstructure:"openai"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type OpenAIConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	BaseURL      string `mapstructure:"base-url"`
	Model        string `mapstructure:"model"`
	CompareModel string `mapstructure:"compare-model"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "jobmatch matches applicants and jobs in a shared two-tower vector space",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jobmatch.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults()
}

// setDefaults registers every key so JOBMATCH_* variables reach Unmarshal as well.
func setDefaults() {
	viper.SetDefault("data-file", "./jobmatch-data.json")

	viper.SetDefault("vector-store.backend", "bolt")
	viper.SetDefault("vector-store.dimension", defaultDimension)
	viper.SetDefault("vector-store.timeout", vecstore.DefaultTimeout)
	viper.SetDefault("vector-store.bolt.path", "./jobmatch-vectors.db")
	viper.SetDefault("vector-store.postgres.dsn", "")

	viper.SetDefault("oracle.provider", "none")
	viper.SetDefault("oracle.timeout", oracle.DefaultTimeout)
	viper.SetDefault("oracle.openai.api-key", "")
	viper.SetDefault("oracle.openai.api-key-file", "")
	viper.SetDefault("oracle.openai.base-url", "https://api.openai.com/v1")
	viper.SetDefault("oracle.openai.model", "gpt-5.2")
	viper.SetDefault("oracle.openai.compare-model", "gpt-5-nano")
	viper.SetDefault("oracle.openai.max-log-length", 200)
	viper.SetDefault("oracle.gemini.api-key", "")
	viper.SetDefault("oracle.gemini.api-key-file", "")
	viper.SetDefault("oracle.gemini.model", "gemini-2.5-pro")
	viper.SetDefault("oracle.gemini.max-retries", 3)
	viper.SetDefault("oracle.gemini.max-log-length", 200)

	sc := scoring.DefaultConfig()
	viper.SetDefault("scoring.batch-size", sc.BatchSize)
	viper.SetDefault("scoring.max-parallel-batches", sc.MaxParallelBatches)

	cs := coldstart.DefaultConfig()
	viper.SetDefault("coldstart.sample-size", cs.SampleSize)
	viper.SetDefault("coldstart.min-pool", cs.MinPool)
	viper.SetDefault("coldstart.pick", cs.Pick)
	viper.SetDefault("coldstart.pos-weight", cs.PosWeight)
	viper.SetDefault("coldstart.neg-weight", cs.NegWeight)

	nc := nudge.DefaultConfig()
	viper.SetDefault("nudge.apply-pull", nc.ApplyPull)
	viper.SetDefault("nudge.reject-push", nc.RejectPush)
	viper.SetDefault("nudge.interview-pull", nc.InterviewPull)
	viper.SetDefault("nudge.feedback-max", nc.FeedbackMax)

	rc := recommend.DefaultConfig()
	viper.SetDefault("recommend.sample-size", rc.SampleSize)
	viper.SetDefault("recommend.limit", rc.Limit)
}

func initConfig() {
	// A missing .env is fine, the environment may already be set.
	_ = godotenv.Load()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// Without a config file the defaults and the environment are used.
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config.Oracle != nil && config.Oracle.Timeout > 0 {
		if config.Scoring.Timeout <= 0 {
			config.Scoring.Timeout = config.Oracle.Timeout
		}
		if config.ColdStart.Timeout <= 0 {
			config.ColdStart.Timeout = config.Oracle.Timeout
		}
	}

	return config, nil
}
