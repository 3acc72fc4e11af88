package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/khrees2412/waterworks/internal/app"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "waterworks",
	Short: "Cover letter automation for the WaterlooWorks co-op portal",
	Long: `Waterworks signs in to the co-op job portal, collects the postings saved in a
folder, writes a tailored PDF cover letter for each one with an LLM, and uploads
the letters back to the portal's document area.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize app with all dependencies
		application, err := app.NewApp(configPath, os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}

		// Store app in command context
		cmd.SetContext(app.WithApp(cmd.Context(), application))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.waterworks/config.yaml)")
}

// Execute runs the root command and returns the process exit code. Ctrl-C
// cancels the command context; runs stop at the next job boundary.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, err := rootCmd.ExecuteContextC(ctx)

	// Cleanup: close app resources
	if cmd != nil {
		if a := app.FromContext(cmd.Context()); a != nil {
			if cerr := a.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	}

	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, failStyle.Render("Error:"), err)
		}
		return app.ExitCode(err)
	}
	return app.ExitOK
}

// errReported marks an error whose details were already printed in a summary
var errReported = errors.New("reported")

type reportedError struct{ err error }

func (e reportedError) Error() string {
	return e.err.Error()
}

func (e reportedError) Unwrap() []error {
	return []error{e.err, errReported}
}
