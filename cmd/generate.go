package cmd

import (
	"fmt"

	"github.com/khrees2412/waterworks/internal/app"
	"github.com/khrees2412/waterworks/internal/pipeline"
	"github.com/khrees2412/waterworks/pkg/models"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate cover letters for the jobs in a portal folder",
	Long: `Sign in, walk every page of a saved-jobs folder and write one PDF cover letter
per posting. Letters that already exist are skipped unless --force is given.`,
	Example: `  waterworks generate
  waterworks generate --folder "Fall 2026" --job-board direct
  waterworks generate --dry-run
  waterworks generate --upload
  waterworks generate --upload --force-upload`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := app.FromContext(cmd.Context())
		cfg := a.Config

		folder, _ := cmd.Flags().GetString("folder")
		boardName, _ := cmd.Flags().GetString("job-board")
		force, _ := cmd.Flags().GetBool("force")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		upload, _ := cmd.Flags().GetBool("upload")
		forceUpload, _ := cmd.Flags().GetBool("force-upload")

		if folder == "" {
			folder = cfg.Defaults.FolderName
		}
		if boardName == "" {
			boardName = cfg.Defaults.JobBoard
		}
		board, err := models.ParseJobBoard(boardName)
		if err != nil {
			return fmt.Errorf("%w: %w", app.ErrInvalidArgument, err)
		}
		if forceUpload && !upload {
			return fmt.Errorf("%w: --force-upload needs --upload", app.ErrInvalidArgument)
		}
		if err := cfg.RequireLLM(); err != nil {
			return err
		}

		cred, err := resolveCredential(a)
		if err != nil {
			return err
		}

		r, err := buildGenerateRun(cmd.Context(), a, dryRun, force)
		if err != nil {
			return err
		}
		defer r.Close()

		fmt.Println(titleStyle.Render(fmt.Sprintf("Generating cover letters for %q (%s)", folder, board.DisplayName())))
		if dryRun {
			fmt.Println(warnStyle.Render("Dry run: nothing is generated, written or uploaded"))
		}

		rep := r.orch.Generate(cmd.Context(), pipeline.GenerateRequest{
			Credential:  cred,
			Folder:      folder,
			Board:       board,
			DryRun:      dryRun,
			Upload:      upload,
			ForceUpload: forceUpload,
			OutputDir:   cfg.Paths.CoverLettersDir,
		})
		printSummary(rep)
		if rep.Err != nil {
			return reportedError{rep.Err}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringP("folder", "f", "", "portal folder to read (default defaults.folder_name)")
	generateCmd.Flags().StringP("job-board", "b", "", "job board: full or direct (default defaults.job_board)")
	generateCmd.Flags().Bool("force", false, "regenerate letters that already exist")
	generateCmd.Flags().Bool("dry-run", false, "list what would be generated without calling the LLM or writing files")
	generateCmd.Flags().Bool("upload", false, "upload new or changed letters after generating")
	generateCmd.Flags().Bool("force-upload", false, "with --upload, upload every letter even if unchanged")
}
