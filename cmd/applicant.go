package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Recommend open jobs to a user",
	Run: func(cmd *cobra.Command, _ []string) {
		user, _ := cmd.Flags().GetString("user")

		runApp(func(ctx context.Context, a *application) error {
			jobs, err := a.recommender.MatchedJobs(ctx, user)
			if err != nil {
				return err
			}
			return printJSON(jobs)
		})
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a user to an open job",
	Run: func(cmd *cobra.Command, _ []string) {
		user, _ := cmd.Flags().GetString("user")
		job, _ := cmd.Flags().GetString("job")

		runApp(func(ctx context.Context, a *application) error {
			res, err := a.applicants.Apply(ctx, user, job)
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

var rejectOfferCmd = &cobra.Command{
	Use:   "reject-offer",
	Short: "Decline an offer on behalf of a user",
	Run: func(cmd *cobra.Command, _ []string) {
		user, _ := cmd.Flags().GetString("user")
		appID, _ := cmd.Flags().GetString("application")

		runApp(func(ctx context.Context, a *application) error {
			out, err := a.applicants.RejectOffer(ctx, user, appID)
			if err != nil {
				return err
			}
			return printJSON(out)
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Replace a user's resume text and re-place the user vector",
	Run: func(cmd *cobra.Command, _ []string) {
		user, _ := cmd.Flags().GetString("user")
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")

		runApp(func(ctx context.Context, a *application) error {
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				text = string(data)
			}
			if text == "" {
				return errors.New("resume text is empty, use --text or --file")
			}

			out, err := a.applicants.UpdateResume(ctx, user, text)
			if err != nil {
				return err
			}
			return printJSON(out)
		})
	},
}

func init() {
	rootCmd.AddCommand(matchCmd, applyCmd, rejectOfferCmd, resumeCmd)

	for _, c := range []*cobra.Command{matchCmd, applyCmd, rejectOfferCmd, resumeCmd} {
		c.Flags().StringP("user", "u", "", "user id")
		c.MarkFlagRequired("user")
	}

	applyCmd.Flags().String("job", "", "job id")
	applyCmd.MarkFlagRequired("job")

	rejectOfferCmd.Flags().StringP("application", "a", "", "application id")
	rejectOfferCmd.MarkFlagRequired("application")

	resumeCmd.Flags().String("text", "", "new resume text")
	resumeCmd.Flags().String("file", "", "read the new resume text from a file")
}
