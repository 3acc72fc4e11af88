package cmd

import (
	"fmt"

	"github.com/khrees2412/waterworks/internal/app"
	"github.com/khrees2412/waterworks/internal/clock"
	"github.com/khrees2412/waterworks/internal/jobstore"
	"github.com/khrees2412/waterworks/pkg/models"
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List cached jobs for a folder",
	Long:  "List the job postings cached from earlier runs. This never contacts the portal.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := app.FromContext(cmd.Context())

		folder, _ := cmd.Flags().GetString("folder")
		boardName, _ := cmd.Flags().GetString("job-board")
		if folder == "" {
			folder = a.Config.Defaults.FolderName
		}
		if boardName == "" {
			boardName = a.Config.Defaults.JobBoard
		}
		board, err := models.ParseJobBoard(boardName)
		if err != nil {
			return fmt.Errorf("%w: %w", app.ErrInvalidArgument, err)
		}

		db, err := a.DB()
		if err != nil {
			return err
		}
		jobs, err := jobstore.New(db, clock.Real{}).ListInFolder(cmd.Context(), folder, board)
		if err != nil {
			return err
		}

		if len(jobs) == 0 {
			fmt.Printf("No cached jobs for %q (%s). Run 'waterworks generate' to fetch them.\n", folder, board.DisplayName())
			return nil
		}

		fmt.Println(titleStyle.Render(fmt.Sprintf("Cached Jobs in %q (%d)", folder, len(jobs))))
		for _, j := range jobs {
			fmt.Printf("%s %s\n", labelStyle.Render(j.Company), valueStyle.Render(j.Title))
			fmt.Printf("  %s\n", mutedStyle.Render(fmt.Sprintf("id %s · last seen %s", j.PortalID, j.LastSeenAt.Local().Format("Jan 2 15:04"))))
			if j.Detail.LocationArrangement != "" || j.Detail.WorkTermDuration != "" {
				fmt.Printf("  %s %s\n", j.Detail.LocationArrangement, j.Detail.WorkTermDuration)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)

	jobsCmd.Flags().StringP("folder", "f", "", "folder name (default defaults.folder_name)")
	jobsCmd.Flags().StringP("job-board", "b", "", "job board: full or direct")
}
