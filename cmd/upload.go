package cmd

import (
	"fmt"

	"github.com/khrees2412/waterworks/internal/app"
	"github.com/khrees2412/waterworks/internal/clock"
	"github.com/khrees2412/waterworks/internal/delivery"
	"github.com/khrees2412/waterworks/internal/pipeline"
	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload new or changed cover letters to the portal",
	Long: `Upload every PDF in the cover letter directory that has not been uploaded in
its current form. Unchanged files are skipped; failed uploads are retried on the
next run. --stats, --list and --reset only read or clear the local upload ledger.`,
	Example: `  waterworks upload
  waterworks upload --stats
  waterworks upload --list
  waterworks upload --reset --yes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := app.FromContext(cmd.Context())
		ctx := cmd.Context()
		dir := a.Config.Paths.CoverLettersDir

		force, _ := cmd.Flags().GetBool("force")
		stats, _ := cmd.Flags().GetBool("stats")
		list, _ := cmd.Flags().GetBool("list")
		reset, _ := cmd.Flags().GetBool("reset")
		yes, _ := cmd.Flags().GetBool("yes")

		if stats || list || reset {
			db, err := a.DB()
			if err != nil {
				return err
			}
			tracker := delivery.New(db, clock.Real{}, a.Logger())
			switch {
			case reset:
				return resetLedger(cmd, tracker, yes)
			case list:
				return listUploads(cmd, tracker, dir)
			default:
				return showStats(cmd, tracker, dir)
			}
		}

		cred, err := resolveCredential(a)
		if err != nil {
			return err
		}
		r, err := buildUploadRun(ctx, a)
		if err != nil {
			return err
		}
		defer r.Close()

		fmt.Println(titleStyle.Render("Uploading cover letters from " + dir))
		rep := r.orch.Upload(ctx, pipeline.UploadRequest{Credential: cred, OutputDir: dir, Force: force})
		printSummary(rep)
		if rep.Err != nil {
			return reportedError{rep.Err}
		}
		return nil
	},
}

func showStats(cmd *cobra.Command, tracker *delivery.Tracker, dir string) error {
	st, err := tracker.Stats(cmd.Context(), dir)
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("Upload Statistics"))
	fmt.Printf("%s %s\n", labelStyle.Render("Directory:"), dir)
	fmt.Printf("  Total PDFs: %d\n", st.Total)
	fmt.Printf("  Uploaded (up to date): %d\n", st.Uploaded)
	fmt.Printf("  Outdated (changed since upload): %d\n", st.Outdated)
	fmt.Printf("  Pending: %d\n", st.Pending)
	fmt.Printf("  Failed last attempt: %d\n", st.Failed)
	fmt.Printf("  Ledger entries: %d\n", st.Tracked)
	return nil
}

func listUploads(cmd *cobra.Command, tracker *delivery.Tracker, dir string) error {
	files, err := tracker.List(cmd.Context(), dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Printf("No PDFs in %s. Run 'waterworks generate' first.\n", dir)
		return nil
	}

	fmt.Println(titleStyle.Render("Cover Letters"))
	for _, f := range files {
		switch f.State {
		case delivery.StateUploaded:
			fmt.Printf("  %s %s %s\n", okStyle.Render("✓ uploaded"), f.Name, mutedStyle.Render(f.Record.UploadedAt.Local().Format("Jan 2 15:04")))
		case delivery.StateOutdated:
			fmt.Printf("  %s %s\n", warnStyle.Render("~ changed "), f.Name)
		case delivery.StateFailed:
			fmt.Printf("  %s %s %s\n", failStyle.Render("✗ failed  "), f.Name, mutedStyle.Render(f.Record.LastError))
		default:
			fmt.Printf("  %s %s\n", mutedStyle.Render("· pending "), f.Name)
		}
	}
	return nil
}

func resetLedger(cmd *cobra.Command, tracker *delivery.Tracker, yes bool) error {
	if !yes && !confirm("Forget every recorded upload? The next upload will send all files again.") {
		fmt.Println("Reset cancelled.")
		return nil
	}
	if err := tracker.Reset(cmd.Context()); err != nil {
		return err
	}
	fmt.Println(okStyle.Render("✓ Upload ledger cleared"))
	return nil
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	uploadCmd.Flags().Bool("force", false, "upload every file even if it is unchanged")
	uploadCmd.Flags().Bool("stats", false, "show upload statistics and exit")
	uploadCmd.Flags().Bool("list", false, "list uploaded and pending files and exit")
	uploadCmd.Flags().Bool("reset", false, "clear the upload ledger")
	uploadCmd.Flags().BoolP("yes", "y", false, "skip the --reset confirmation")
}
