package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/scoring"
	"github.com/spigell/jobmatch/internal/workflow"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score unrated applications of a company",
	Run: func(cmd *cobra.Command, _ []string) {
		company, _ := cmd.Flags().GetString("company")
		job, _ := cmd.Flags().GetString("job")
		batch, _ := cmd.Flags().GetInt("batch-size")
		offset, _ := cmd.Flags().GetInt("offset")
		rescore, _ := cmd.Flags().GetBool("rescore")

		runApp(func(ctx context.Context, a *application) error {
			score := a.scoring.ScoreUnrated
			if rescore {
				score = a.scoring.Rescore
			}
			report, err := score(ctx, company, job, batch, offset)
			if err != nil {
				return err
			}
			a.logger.Info("scoring done",
				zap.String(logger.FieldCompany, company),
				zap.Int("scored", report.ScoredCount),
				zap.Int("unrated_left", report.TotalUnrated),
			)
			return printJSON(report)
		})
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Score a job's applicants half on job fit and half on custom criteria",
	Run: func(cmd *cobra.Command, _ []string) {
		company, _ := cmd.Flags().GetString("company")
		job, _ := cmd.Flags().GetString("job")
		name, _ := cmd.Flags().GetString("name")
		criteria, _ := cmd.Flags().GetString("criteria")

		runApp(func(ctx context.Context, a *application) error {
			res, err := a.scoring.CustomReport(ctx, company, job, name, criteria)
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Rank the applicants of a job against a free-form prompt",
	Run: func(cmd *cobra.Command, _ []string) {
		job, _ := cmd.Flags().GetString("job")
		prompt, _ := cmd.Flags().GetString("prompt")
		limit, _ := cmd.Flags().GetInt("limit")

		runApp(func(ctx context.Context, a *application) error {
			res, err := a.scoring.TopCandidates(ctx, job, prompt, limit)
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Show the cached skill analysis of an applicant",
	Run: func(cmd *cobra.Command, _ []string) {
		company, _ := cmd.Flags().GetString("company")
		user, _ := cmd.Flags().GetString("user")
		job, _ := cmd.Flags().GetString("job")

		runApp(func(ctx context.Context, a *application) error {
			report, err := a.scoring.AnalyzeSkills(ctx, company, user, job)
			if err != nil {
				return err
			}
			return printJSON(report)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Move an application through the hiring workflow",
	Long:  "Move an application through the hiring workflow. Without --to the next status is chosen interactively.",
	Run: func(cmd *cobra.Command, _ []string) {
		company, _ := cmd.Flags().GetString("company")
		appID, _ := cmd.Flags().GetString("application")
		to, _ := cmd.Flags().GetString("to")
		score, _ := cmd.Flags().GetInt("score")
		scoreSet := cmd.Flags().Changed("score")

		runApp(func(ctx context.Context, a *application) error {
			target := domain.Status(to)
			if target == "" {
				current, err := a.records.Application(ctx, appID)
				if err != nil {
					return err
				}
				target, err = chooseStatus(current.Status)
				if err != nil {
					return err
				}
			}

			var technical *int
			if scoreSet {
				technical = &score
			} else if workflow.RequiresScore(target) {
				v, err := askTechnicalScore()
				if err != nil {
					return err
				}
				technical = &v
			}

			updated, err := a.workflow.UpdateStatus(ctx, company, appID, target, technical)
			if err != nil {
				return err
			}
			return printJSON(updated)
		})
	},
}

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show a company's dashboard and recent activity",
	Run: func(cmd *cobra.Command, _ []string) {
		company, _ := cmd.Flags().GetString("company")

		runApp(func(ctx context.Context, a *application) error {
			d, err := a.workflow.Dashboard(ctx, company)
			if err != nil {
				return err
			}
			return printJSON(d)
		})
	},
}

func chooseStatus(current domain.Status) (domain.Status, error) {
	next := workflow.Next(current)
	if len(next) == 0 {
		return "", fmt.Errorf("application is %s, which is final", current)
	}

	items := make([]string, 0, len(next))
	for _, s := range next {
		items = append(items, s.String())
	}
	prompt := promptui.Select{
		Label: fmt.Sprintf("Application is %s. Move to", current),
		Items: items,
	}
	_, selected, err := prompt.Run()
	if err != nil {
		return "", err
	}
	return domain.Status(selected), nil
}

func askTechnicalScore() (int, error) {
	prompt := promptui.Prompt{
		Label: fmt.Sprintf("Technical score (%d-%d)", workflow.MinTechnicalScore, workflow.MaxTechnicalScore),
		Validate: func(s string) error {
			v, err := strconv.Atoi(s)
			if err != nil {
				return err
			}
			if v < workflow.MinTechnicalScore || v > workflow.MaxTechnicalScore {
				return fmt.Errorf("score must be between %d and %d", workflow.MinTechnicalScore, workflow.MaxTechnicalScore)
			}
			return nil
		},
	}
	raw, err := prompt.Run()
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(raw)
}

func init() {
	rootCmd.AddCommand(scoreCmd, reportCmd, topCmd, skillsCmd, statusCmd, activityCmd)

	scoreCmd.Flags().StringP("company", "c", "", "company id")
	scoreCmd.Flags().String("job", "", "score only applications to this job")
	scoreCmd.Flags().Int("batch-size", 0, "applicants per oracle call (default from config)")
	scoreCmd.Flags().Int("offset", 0, "skip this many unrated applications")
	scoreCmd.Flags().Bool("rescore", false, "score already rated applications again")
	scoreCmd.MarkFlagRequired("company")

	reportCmd.Flags().StringP("company", "c", "", "company id")
	reportCmd.Flags().String("job", "", "job id")
	reportCmd.Flags().String("name", scoring.DefaultReportName, "report name")
	reportCmd.Flags().String("criteria", "", "extra criteria weighted equally with the job, e.g. \"led a team of five\"")
	reportCmd.MarkFlagRequired("company")
	reportCmd.MarkFlagRequired("job")
	reportCmd.MarkFlagRequired("criteria")

	topCmd.Flags().String("job", "", "job id")
	topCmd.Flags().StringP("prompt", "p", "", "what the company is looking for, e.g. \"top 5 python experts\"")
	topCmd.Flags().Int("limit", 0, "how many candidates to return (default parsed from the prompt or 12)")
	topCmd.MarkFlagRequired("job")
	topCmd.MarkFlagRequired("prompt")

	skillsCmd.Flags().StringP("company", "c", "", "company id")
	skillsCmd.Flags().StringP("user", "u", "", "applicant user id")
	skillsCmd.Flags().String("job", "", "job id for a job specific analysis")
	skillsCmd.MarkFlagRequired("company")
	skillsCmd.MarkFlagRequired("user")

	statusCmd.Flags().StringP("company", "c", "", "company id")
	statusCmd.Flags().StringP("application", "a", "", "application id")
	statusCmd.Flags().String("to", "", "target status")
	statusCmd.Flags().Int("score", 0, "technical score (1-10), required for offer and rejected_post_interview")
	statusCmd.MarkFlagRequired("company")
	statusCmd.MarkFlagRequired("application")

	activityCmd.Flags().StringP("company", "c", "", "company id")
	activityCmd.MarkFlagRequired("company")
}
