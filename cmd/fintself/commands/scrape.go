package commands

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"fintself/lib/alert"
	"fintself/lib/export"
	"fintself/lib/osutil"
	"fintself/lib/scraper"
	"fintself/lib/scrapers"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	scrapeOutputFile   *string
	scrapeOutputFormat *string
	scrapeDebug        *bool
	scrapeHeadless     *bool
)

func init() {
	scrapeOutputFile = scrapeCmd.Flags().StringP("output-file", "o", "",
		"Path to the output file (.json, .csv or .xlsx); the format is inferred from the extension.")
	scrapeOutputFormat = scrapeCmd.Flags().StringP("output-format", "f", "",
		"Console output format when no file is given: json, csv or table.")
	scrapeDebug = scrapeCmd.Flags().Bool("debug", false,
		"Capture page snapshots at checkpoints and on failure, forcing a visible browser.")
	scrapeHeadless = scrapeCmd.Flags().Bool("headless", true,
		"Run the browser headless; --headless=false shows the window.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <bank_id> [--output-file <path> | --output-format <json|csv|table>]",
	Short: "Runs an institution scraper and exports the extracted movements.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		bankID := args[0]
		cfg := loadConfig()

		outputFile := *scrapeOutputFile
		outputFormat := *scrapeOutputFormat
		if outputFile == "" && outputFormat == "" {
			osutil.Fatal("no output selected",
				errors.New("pass --output-file to save results or --output-format to print them"))
		}
		if outputFile != "" && outputFormat != "" {
			slog.Warn("both --output-file and --output-format given, the file wins")
			outputFormat = ""
		}

		// reject bad output selections before any browser work happens
		var consoleFormat export.Format
		var err error
		if outputFile != "" {
			_, err = export.FormatForPath(outputFile)
		} else {
			consoleFormat, err = export.ParseFormat(outputFormat)
		}
		if err != nil {
			osutil.Fatal("invalid output selection", err)
		}

		debugMode := cfg.Debug.Enabled
		if cmd.Flags().Changed("debug") {
			debugMode = *scrapeDebug
		}
		headless := true
		if cfg.Browser.Headless != nil {
			headless = *cfg.Browser.Headless
		}
		if cmd.Flags().Changed("headless") {
			headless = *scrapeHeadless
		}

		registry := scrapers.NewRegistry(scrapers.Options{
			SantanderCards: cfg.Banks.SantanderCards,
		})
		driver, err := registry.Resolve(bankID)
		if err != nil {
			osutil.Fatal("unknown institution", err)
		}

		user, password := credentials(bankID)

		var mailer alert.Mailer
		if cfg.Alert.SMTP.Host != "" {
			mailer = alert.NewSMTPMailer(cfg.Alert.SMTP)
		}
		tracker := alert.NewTracker(alert.TrackerOptions{
			StatePath: cfg.Alert.StatePath,
			Threshold: cfg.Alert.Threshold,
			Mailer:    mailer,
		})

		scr := scraper.New(driver, scraper.Options{
			Visible:  !headless,
			Debug:    debugMode,
			DebugDir: cfg.Debug.Dir,
			Browser:  browserOptions(cfg.Browser),
		})

		t1 := time.Now()
		movements, scrapeErr := scr.Scrape(ctx, user, password)
		if scrapeErr != nil {
			failures := tracker.RecordFailure(ctx, bankID, scrapeErr)
			slog.Error("scraping failed",
				"bank_id", bankID, "consecutive_failures", failures, "err", scrapeErr)
			if len(movements) == 0 {
				os.Exit(1)
			}
			slog.Warn("continuing with the movements that did extract",
				"movements", len(movements))
		} else {
			tracker.RecordSuccess(ctx, bankID)
			slog.Info("scraping time", "seconds", time.Since(t1).Seconds())
		}

		if len(movements) == 0 {
			slog.Info("no movements found", "bank_id", bankID)
			return
		}

		if outputFile != "" {
			if err := export.WriteFile(movements, outputFile); err != nil {
				osutil.Fatal("failed to write output file", err)
			}
		} else {
			if err := export.Render(os.Stdout, movements, consoleFormat); err != nil {
				osutil.Fatal("failed to render output", err)
			}
		}

		// partial results were exported, the run still counts as failed
		if scrapeErr != nil {
			os.Exit(1)
		}
	},
}

// credentials resolves the login pair from <BANK_ID>_USER and
// <BANK_ID>_PASSWORD, prompting interactively for whichever is missing.
func credentials(bankID string) (string, string) {
	prefix := strings.ToUpper(strings.ReplaceAll(bankID, "-", "_"))
	user := os.Getenv(prefix + "_USER")
	password := os.Getenv(prefix + "_PASSWORD")

	if user == "" {
		fmt.Fprintf(os.Stderr, "User for %s: ", bankID)
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			osutil.Fatal("failed to read user", err)
		}
		user = strings.TrimSpace(line)
	}
	if password == "" {
		fmt.Fprintf(os.Stderr, "Password for %s: ", bankID)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			osutil.Fatal("failed to read password", err)
		}
		password = string(raw)
	}
	return user, password
}
