package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/activity"
	"github.com/spigell/jobmatch/internal/applicant"
	"github.com/spigell/jobmatch/internal/coldstart"
	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/nudge"
	"github.com/spigell/jobmatch/internal/oracle"
	"github.com/spigell/jobmatch/internal/oracle/gemini"
	"github.com/spigell/jobmatch/internal/oracle/openai"
	"github.com/spigell/jobmatch/internal/recommend"
	"github.com/spigell/jobmatch/internal/records"
	"github.com/spigell/jobmatch/internal/scoring"
	"github.com/spigell/jobmatch/internal/secrets"
	"github.com/spigell/jobmatch/internal/vecstore"
	"github.com/spigell/jobmatch/internal/workflow"
)

// application is everything a command needs, built from the config.
type application struct {
	config *Config
	logger *zap.Logger

	records  *records.Memory
	activity *activity.Store
	vectors  vecstore.Store
	closers  []func() error

	initializer *coldstart.Initializer
	nudger      *nudge.Nudger
	scoring     *scoring.Pipeline
	workflow    *workflow.Service
	recommender *recommend.Recommender
	applicants  *applicant.Service
}

// runApp builds the application, runs fn and persists the dataset afterwards.
// Any error is fatal, like the rest of the cli.
func runApp(fn func(ctx context.Context, a *application) error) {
	ctx := context.Background()

	lg, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		lg.Fatal("getting a config", zap.Error(err))
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	lg.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	a, err := newApplication(ctx, config, lg)
	if err != nil {
		lg.Fatal("building the application", zap.Error(err))
	}
	defer a.close()

	if err := fn(ctx, a); err != nil {
		a.close()
		lg.Fatal("command failed", zap.Error(err))
	}

	if err := a.save(); err != nil {
		a.close()
		lg.Fatal("saving data file", zap.String("path", config.DataFile), zap.Error(err))
	}
}

func newApplication(ctx context.Context, config *Config, lg *zap.Logger) (*application, error) {
	ds, err := records.LoadFile(config.DataFile)
	if err != nil {
		return nil, err
	}

	a := &application{
		config:   config,
		logger:   lg,
		records:  records.NewMemory(ds),
		activity: activity.NewStore(ds.Activity, ds.AgentQueries, lg),
	}

	if err := a.openVectors(ctx); err != nil {
		return nil, err
	}

	comparer, scorer, err := newOracle(ctx, config.Oracle, lg)
	if err != nil {
		a.close()
		return nil, err
	}

	a.initializer = coldstart.New(a.vectors, comparer, config.ColdStart, lg)
	a.nudger = nudge.New(a.vectors, a.initializer, config.Nudge, lg)
	a.scoring = scoring.New(scoring.Deps{
		Records:     a.records,
		Vectors:     a.vectors,
		Initializer: a.initializer,
		Scorer:      scorer,
		Activity:    a.activity,
		Counter:     a.activity,
	}, config.Scoring, lg)
	a.workflow = workflow.NewService(a.records, a.activity, a.nudger, lg)
	a.recommender = recommend.New(a.records, a.vectors, a.initializer,
		recommend.NewSampler(config.Recommend.SampleSize), config.Recommend, lg)
	a.applicants = applicant.NewService(a.records, a.vectors, a.initializer, a.nudger, lg)

	return a, nil
}

func (a *application) openVectors(ctx context.Context) error {
	cfg := a.config.VectorStore
	if cfg == nil {
		cfg = &VectorStoreConfig{Backend: "memory"}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "memory":
		a.logger.Warn("using the in-memory vector store, vectors are lost on exit")
		a.vectors = vecstore.NewMemory()
	case "", "bolt":
		store, err := vecstore.OpenBolt(cfg.Bolt.Path)
		if err != nil {
			return err
		}
		a.vectors = store
		a.closers = append(a.closers, store.Close)
	case "postgres":
		dsn, err := secrets.Load(secrets.Source{
			Name:  "postgres dsn",
			Value: cfg.Postgres.DSN,
			Env:   "JOBMATCH_POSTGRES_DSN",
		})
		if err != nil {
			return err
		}
		store, err := vecstore.OpenPostgres(ctx, dsn)
		if err != nil {
			return err
		}
		a.vectors = store
		a.closers = append(a.closers, store.Close)
	default:
		return fmt.Errorf("unsupported vector store backend: %s", cfg.Backend)
	}

	// every suspension on the store is bounded, a stalled backend reads as a failure
	a.vectors = vecstore.WithTimeout(a.vectors, cfg.Timeout)

	a.logger.Debug("vector store ready",
		zap.String("backend", cfg.Backend),
		zap.Duration("timeout", cfg.Timeout),
	)
	return nil
}

// newOracle returns nil interfaces for provider "none" so every caller uses its fallback.
func newOracle(ctx context.Context, cfg *OracleConfig, lg *zap.Logger) (oracle.Comparer, oracle.FitScorer, error) {
	if cfg == nil {
		return nil, nil, nil
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	switch provider {
	case "", "none":
		lg.Info("no ranking oracle configured, local fallbacks will be used")
		return nil, nil, nil
	case openai.Provider:
		if cfg.OpenAI == nil {
			return nil, nil, fmt.Errorf("oracle.openai section is required for provider %s", provider)
		}
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "openai api key",
			File:  cfg.OpenAI.APIKeyFile,
			Value: cfg.OpenAI.APIKey,
			Env:   "OPENAI_API_KEY",
		})
		if err != nil {
			return nil, nil, fmt.Errorf("%w (set oracle.openai.api-key-file or OPENAI_API_KEY)", err)
		}

		fitClient, err := openai.New(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
			Timeout: cfg.Timeout,
		}, lg)
		if err != nil {
			return nil, nil, err
		}
		compareModel := cfg.OpenAI.CompareModel
		if strings.TrimSpace(compareModel) == "" {
			compareModel = cfg.OpenAI.Model
		}
		compareClient, err := openai.New(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   compareModel,
			Timeout: cfg.Timeout,
		}, lg)
		if err != nil {
			return nil, nil, err
		}

		return oracle.NewLLM(provider, compareClient, lg, cfg.OpenAI.MaxLogLength),
			oracle.NewLLM(provider, fitClient, lg, cfg.OpenAI.MaxLogLength), nil
	case gemini.Provider:
		if cfg.Gemini == nil {
			return nil, nil, fmt.Errorf("oracle.gemini section is required for provider %s", provider)
		}
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			File:  cfg.Gemini.APIKeyFile,
			Value: cfg.Gemini.APIKey,
			Env:   "GEMINI_API_KEY",
		})
		if err != nil {
			return nil, nil, fmt.Errorf("%w (set oracle.gemini.api-key-file or GEMINI_API_KEY)", err)
		}

		generator, err := gemini.NewGenerator(ctx, gemini.Config{
			APIKey:     apiKey,
			Model:      cfg.Gemini.Model,
			MaxRetries: cfg.Gemini.MaxRetries,
		}, lg.With(zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries)))
		if err != nil {
			return nil, nil, err
		}

		llm := oracle.NewLLM(provider, generator, lg, cfg.Gemini.MaxLogLength)
		return llm, llm, nil
	default:
		return nil, nil, fmt.Errorf("unsupported oracle provider: %s", cfg.Provider)
	}
}

// save writes records and the activity log back to the data file.
func (a *application) save() error {
	ds := a.records.Snapshot()
	ds.Activity, ds.AgentQueries = a.activity.Export()
	return ds.ToFile(a.config.DataFile)
}

func (a *application) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("closing resource", zap.Error(err))
		}
	}
	a.closers = nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
