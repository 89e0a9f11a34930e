package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/nudge"
	"github.com/spigell/jobmatch/internal/vector"
)

var eventCmd = &cobra.Command{
	Use:   "event <apply|reject-offer|interview|feedback>",
	Short: "Fire an interaction event or a raw nudge on a user/job pair",
	Long: "Fire an interaction event on a user/job pair. With --direction and --strength the " +
		"event name is ignored and a raw pull or push is applied.",
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		user, _ := cmd.Flags().GetString("user")
		job, _ := cmd.Flags().GetString("job")
		score, _ := cmd.Flags().GetFloat64("score")
		direction, _ := cmd.Flags().GetString("direction")
		strength, _ := cmd.Flags().GetFloat64("strength")

		runApp(func(ctx context.Context, a *application) error {
			if direction != "" {
				dir, err := nudge.ParseDirection(direction)
				if err != nil {
					return err
				}
				out, err := a.nudger.Update(ctx, user, job, dir, strength)
				if err != nil {
					return err
				}
				return printJSON(out)
			}

			if len(args) == 0 {
				return errors.New("an event name or --direction is required")
			}
			out, err := a.nudger.Fire(ctx, nudge.Event(args[0]), user, job, score)
			if err != nil {
				return err
			}
			return printJSON(out)
		})
	},
}

var initVectorCmd = &cobra.Command{
	Use:   "init-vector <job|user> <id>",
	Short: "Place a job or user in the vector space",
	Long: "Place a job or user in the vector space by cold start. With --bootstrap a random unit " +
		"vector is stored when the pool is still too small, which seeds an empty store.",
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		bootstrap, _ := cmd.Flags().GetBool("bootstrap")

		runApp(func(ctx context.Context, a *application) error {
			t, err := domain.ParseEntityType(args[0])
			if err != nil {
				return err
			}
			return initVector(ctx, a, t, args[1], bootstrap)
		})
	},
}

func initVector(ctx context.Context, a *application, t domain.EntityType, id string, bootstrap bool) error {
	var payload any
	var place func() (any, error)

	switch t {
	case domain.EntityJob:
		job, err := a.records.Job(ctx, id)
		if err != nil {
			return err
		}
		p := job.Payload()
		payload = p
		place = func() (any, error) { return a.initializer.InitializeJob(ctx, id, p) }
	default:
		user, err := a.records.User(ctx, id)
		if err != nil {
			return err
		}
		p := user.Payload()
		payload = p
		place = func() (any, error) { return a.initializer.InitializeUser(ctx, id, p) }
	}

	out, err := place()
	if err == nil {
		return printJSON(out)
	}
	if !bootstrap || !errors.Is(err, domain.ErrInsufficientPool) {
		return err
	}

	meta, err := domain.ToMetadata(payload)
	if err != nil {
		return err
	}
	dim := defaultDimension
	if a.config.VectorStore != nil && a.config.VectorStore.Dimension > 0 {
		dim = a.config.VectorStore.Dimension
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	v := vector.RandomUnit(rng, dim)
	if err := a.vectors.Upsert(ctx, t, id, v, meta); err != nil {
		return fmt.Errorf("store bootstrap vector: %w", err)
	}

	a.logger.Info("bootstrap vector stored",
		zap.String("entity_type", string(t)),
		zap.String("entity_id", id),
		zap.Int("dimension", len(v)),
	)
	return printJSON(map[string]any{
		"entity_type": t,
		"id":          id,
		"source":      "bootstrap",
		"dimension":   len(v),
	})
}

func init() {
	rootCmd.AddCommand(eventCmd, initVectorCmd)

	eventCmd.Flags().StringP("user", "u", "", "user id")
	eventCmd.Flags().String("job", "", "job id")
	eventCmd.Flags().Float64("score", 5, "feedback score (0-10), used by the feedback event")
	eventCmd.Flags().String("direction", "", "raw nudge direction: pull or push")
	eventCmd.Flags().Float64("strength", 0, "raw nudge strength in (0, 1]")
	eventCmd.MarkFlagRequired("user")
	eventCmd.MarkFlagRequired("job")

	initVectorCmd.Flags().Bool("bootstrap", false, "store a random unit vector when the pool is too small")
}
