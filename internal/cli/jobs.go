package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	apperrors "algodesk/internal/errors"
	"algodesk/internal/models"
	"algodesk/pkg/utils"
)

func addJobCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Backend job queue",
	}
	cmd.AddCommand(newJobsListCmd(app))
	cmd.AddCommand(newJobsStopCmd(app))
	rootCmd.AddCommand(cmd)
}

// jobFilter reads the shared listing flags. The date defaults to the
// current trading day in IST.
func jobFilter(cmd *cobra.Command) (models.JobFilter, error) {
	filter := models.JobFilter{Date: utils.TradingDay(time.Now())}
	if date, _ := cmd.Flags().GetString("date"); date != "" {
		d, err := time.ParseInLocation("2006-01-02", date, utils.IndiaLocation)
		if err != nil {
			return filter, fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
		}
		filter.Date = d
	}
	state, _ := cmd.Flags().GetString("state")
	filter.State = models.JobState(state)
	filter.Page, _ = cmd.Flags().GetInt("page")
	filter.PerPage, _ = cmd.Flags().GetInt("per-page")
	return filter, nil
}

func newJobsListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs for a trading day",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			filter, err := jobFilter(cmd)
			if err != nil {
				return err
			}
			if err := app.requireLogin(ctx); err != nil {
				return err
			}
			page, err := app.API.Jobs(ctx, filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(page)
			}
			if len(page.Jobs) == 0 {
				output.Dim("No jobs on %s.", utils.FormatDate(filter.Date))
				return nil
			}

			table := NewTable(output, "ID", "NAME", "STATE", "PROGRESS", "CREATED", "FINISHED", "REASON")
			for _, j := range page.Jobs {
				table.AddRow(
					j.ID,
					utils.Truncate(j.Name, 32),
					jobState(output, j.State),
					fmt.Sprintf("%.0f%%", j.Progress.Float()),
					timeOrDash(j.CreatedAt),
					timeOrDash(j.FinishedAt),
					utils.Truncate(j.FailedReason, 40),
				)
			}
			table.Render()
			output.Dim("Page %d, %d of %d job(s)", max(page.Page, 1), len(page.Jobs), page.Total)
			return nil
		},
	}

	addJobFilterFlags(cmd)
	cmd.Flags().Int("page", 1, "page number")
	cmd.Flags().Int("per-page", 25, "jobs per page")
	return cmd
}

func addJobFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("date", "", "trading day YYYY-MM-DD (default today, IST)")
	cmd.Flags().String("state", "", "filter by state")
}

func newJobsStopCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop <job-id>",
		Short: "Stop a job that has not finished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			filter, err := jobFilter(cmd)
			if err != nil {
				return err
			}
			if err := app.requireLogin(ctx); err != nil {
				return err
			}

			// The job's state comes from the day's listing; a job not listed
			// is left for the backend to judge.
			job := models.Job{ID: args[0]}
			filter.PerPage = 500
			if page, err := app.API.Jobs(ctx, filter); err == nil {
				for _, j := range page.Jobs {
					if j.ID == job.ID {
						job = j
						break
					}
				}
			}

			if err := app.Dispatcher.StopJob(ctx, job); err != nil {
				output.Error("%s", apperrors.UserMessage(err, "Stopping job failed"))
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"status": true, "id": job.ID})
			}
			output.Success("✓ Stop requested for job %s", job.ID)
			return nil
		},
	}
	addJobFilterFlags(cmd)
	return cmd
}

func jobState(output *Output, s models.JobState) string {
	switch s {
	case models.JobCompleted:
		return output.Green(string(s))
	case models.JobFailed:
		return output.Red(string(s))
	case models.JobActive:
		return output.Yellow(string(s))
	}
	return string(s)
}

func timeOrDash(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return utils.FormatDateTime(*t)
}
