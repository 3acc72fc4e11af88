package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/khrees2412/waterworks/internal/app"
	"github.com/khrees2412/waterworks/internal/delivery"
	"github.com/khrees2412/waterworks/internal/pipeline"
	"github.com/khrees2412/waterworks/pkg/models"
	"golang.org/x/term"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			MarginTop(1).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("7"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// counting is set while the approval countdown owns the current line
var counting bool

func countdown(remaining time.Duration) {
	counting = true
	fmt.Printf("\r%s %2ds remaining ", mutedStyle.Render("Approve the sign-in on your phone:"), int(remaining.Round(time.Second).Seconds()))
}

func endCountdown() {
	if counting {
		fmt.Println()
		counting = false
	}
}

func progressHooks() pipeline.Hooks {
	return pipeline.Hooks{
		OnPhase: func(msg string) {
			endCountdown()
			fmt.Println(labelStyle.Render("» " + msg))
		},
		OnJob: func(n, total int, doc models.GeneratedDocument) {
			endCountdown()
			prefix := mutedStyle.Render(fmt.Sprintf("[%d/%d]", n, total))
			subject := fmt.Sprintf("%s - %s", doc.Company, doc.Title)
			switch doc.Status {
			case models.DocGenerated:
				fmt.Printf("%s %s %s\n", prefix, okStyle.Render("✓ generated"), subject)
			case models.DocSkippedExists:
				fmt.Printf("%s %s %s\n", prefix, mutedStyle.Render("- exists"), subject)
			case models.DocPlanned:
				fmt.Printf("%s %s %s -> %s\n", prefix, warnStyle.Render("~ would generate"), subject, doc.OutputPath)
			case models.DocFailed:
				fmt.Printf("%s %s %s: %v\n", prefix, failStyle.Render("✗ failed"), subject, doc.Err)
			}
		},
		OnUpload: func(doc delivery.Document, err error) {
			if err != nil {
				fmt.Printf("  %s %s: %v\n", failStyle.Render("✗"), doc.Name(), err)
				return
			}
			fmt.Printf("  %s %s\n", okStyle.Render("✓"), doc.Name())
		},
	}
}

func printSummary(rep *pipeline.Report) {
	endCountdown()
	s := rep.Summary
	fmt.Println(titleStyle.Render("Run Summary"))

	row := func(label string, n int) {
		fmt.Printf("  %s %s\n", labelStyle.Render(fmt.Sprintf("%-18s", label)), valueStyle.Render(fmt.Sprint(n)))
	}
	if s.PagesVisited > 0 || s.JobsDiscovered > 0 {
		row("Pages visited", s.PagesVisited)
		row("Jobs discovered", s.JobsDiscovered)
		row("Generated", s.GeneratedCount)
		row("Skipped (exists)", s.SkippedCount)
	}
	if s.PlannedCount > 0 {
		row("Would generate", s.PlannedCount)
	}
	if rep.UploadPlan != nil {
		row("Uploaded", s.UploadedCount)
		row("Already uploaded", s.AlreadyUploaded)
	}
	row("Failed", s.FailedCount)

	if len(s.Failures) > 0 {
		fmt.Printf("\n%s\n", labelStyle.Render("Failures"))
		for _, f := range s.Failures {
			fmt.Printf("  %s %s: %s\n", failStyle.Render("["+f.Stage+"]"), f.Subject, f.Reason)
		}
	}

	if rep.Outcome == pipeline.Aborted {
		fmt.Printf("\n%s %v\n", failStyle.Render("Aborted:"), rep.Err)
	} else {
		fmt.Printf("\n%s\n", okStyle.Render("Completed"))
	}
}

// resolveCredential takes the username and password from configuration and
// prompts for whatever is missing. The password is read without echo.
func resolveCredential(a *app.App) (models.Credential, error) {
	cred := models.Credential{
		Username: strings.TrimSpace(a.Config.Portal.Username),
		Password: a.Config.Portal.Password,
	}
	if cred.Username != "" && cred.Password != "" {
		return cred, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return cred, fmt.Errorf("%w: portal credentials are not configured and stdin is not a terminal", app.ErrInvalidArgument)
	}

	if cred.Username == "" {
		fmt.Print(labelStyle.Render("Portal username: "))
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return cred, fmt.Errorf("read username: %w", err)
		}
		cred.Username = strings.TrimSpace(line)
	}
	if cred.Password == "" {
		fmt.Print(labelStyle.Render("Portal password: "))
		pw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return cred, fmt.Errorf("read password: %w", err)
		}
		cred.Password = string(pw)
	}

	if cred.Username == "" || cred.Password == "" {
		return cred, fmt.Errorf("%w: username and password are required", app.ErrInvalidArgument)
	}
	return cred, nil
}

// confirm asks a yes/no question; only "y" or "yes" counts
func confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", warnStyle.Render(question))
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
