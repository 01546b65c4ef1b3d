package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dallasmenard-github/NiagaraGetData/internal/app"
	"github.com/dallasmenard-github/NiagaraGetData/internal/domain"
	"github.com/dallasmenard-github/NiagaraGetData/internal/infrastructure"
	"github.com/dallasmenard-github/NiagaraGetData/pkg/logger"
)

const dateLayout = "2006-01-02"

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "niagara-get-data",
		Short: "Bulk downloader for Niagara BAS trend data",
		Long:  `A command-line tool that downloads trend CSV exports from Niagara building-automation stations in parallel, with resume support.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path")

	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(districtsCmd)
	rootCmd.AddCommand(credsCmd)
	rootCmd.AddCommand(historyCmd)
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download trend data for one or all districts",
	RunE: func(cmd *cobra.Command, args []string) error {
		district, _ := cmd.Flags().GetString("district")
		allDistricts, _ := cmd.Flags().GetBool("all-districts")
		days, _ := cmd.Flags().GetInt("days")
		startStr, _ := cmd.Flags().GetString("start")
		endStr, _ := cmd.Flags().GetString("end")
		workers, _ := cmd.Flags().GetInt("workers")
		throttle, _ := cmd.Flags().GetDuration("throttle")
		output, _ := cmd.Flags().GetString("output")
		force, _ := cmd.Flags().GetBool("force")
		cookie, _ := cmd.Flags().GetString("cookie")

		if district == "" && !allDistricts {
			return fmt.Errorf("either --district or --all-districts is required")
		}
		if district != "" && allDistricts {
			return fmt.Errorf("--district and --all-districts are mutually exclusive")
		}

		config, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		if workers > 0 {
			config.Engine.Workers = workers
		}
		if cmd.Flags().Changed("throttle") {
			config.Engine.Throttle = throttle
		}
		if days > 0 {
			config.Engine.Days = days
		}
		if output != "" {
			config.OutputDir = output
		}

		window, err := resolveWindow(startStr, endStr, config.Engine.Days)
		if err != nil {
			return err
		}

		var provider domain.SessionProvider
		if cookie != "" {
			provider, err = infrastructure.NewStaticCookieProvider(cookie)
			if err != nil {
				return fmt.Errorf("invalid --cookie value: %w", err)
			}
		} else {
			provider = &infrastructure.EnvCookieProvider{}
		}

		// Ctrl-C stops dispatch of new points; in-flight requests finish.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		targets := []string{strings.ToUpper(district)}
		if allDistricts {
			targets = app.DistrictNames(config)
		}

		failures := 0
		total := domain.NewBatchStats(0)
		processed := 0
		for _, name := range targets {
			cfg, ok := lookupDistrict(config, name)
			if !ok {
				fmt.Fprintf(os.Stderr, "Unknown district: %s\n", name)
				failures++
				continue
			}
			if allDistricts && !cfg.HasBaseAddress() {
				log.Debug("Skipping district without base address", zap.String("district", name))
				continue
			}

			stats, err := runDistrict(ctx, config, cfg, name, provider, window, force, log)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
				failures++
			}
			if stats != nil {
				processed++
				total.Total += stats.Total
				total.Success += stats.Success
				total.Failed += stats.Failed
				total.Empty += stats.Empty
				total.Skipped += stats.Skipped
				total.BytesDownloaded += stats.BytesDownloaded
			}

			if ctx.Err() != nil {
				fmt.Fprintln(os.Stderr, "Interrupted, stopping")
				break
			}
		}

		if processed > 1 {
			total.EndTime = time.Now()
			fmt.Printf("\nAll districts: %s\n", total.Summary())
		}

		if failures > 0 {
			os.Exit(1)
		}
		return nil
	},
}

// runDistrict downloads one district's window and records the run. The
// returned stats are non-nil whenever a batch actually ran, even if some
// points failed.
func runDistrict(ctx context.Context, config *domain.Config, cfg domain.District, name string, provider domain.SessionProvider, window app.DateRange, force bool, log *zap.Logger) (*domain.BatchStats, error) {
	fs := afero.NewOsFs()

	gen, err := app.NewURLGenerator(fs, name, cfg, config.OutputDir)
	if err != nil {
		return nil, err
	}
	if !gen.HasPointList() {
		return nil, fmt.Errorf("no point list found (tried config and point_lists/pointlist_%s.txt)", name)
	}

	items, err := gen.Generate(window, app.DefaultTZOffset)
	if err != nil {
		return nil, err
	}

	cookies, err := provider.Cookies(ctx, name)
	if err != nil {
		return nil, err
	}

	fmt.Printf("\n%s: %d points (%s point list), %s to %s\n",
		name, len(items), gen.PointListSource(),
		window.Start.Format(dateLayout), window.End.Format(dateLayout))

	engine := app.NewEngine(cookies, app.EngineOptions{
		Workers:        config.Engine.Workers,
		Timeout:        config.Engine.Timeout,
		MinContentSize: config.Engine.MinContentSize,
		Throttle:       config.Engine.Throttle,
		StateInterval:  config.Engine.StateInterval,
	}, log)
	defer engine.Close()

	outputFolder := gen.OutputFolder(config.OutputDir)

	items, preSkipped := engine.FilterExisting(items, outputFolder, force)
	if preSkipped > 0 {
		fmt.Printf("  Skipping %d points with existing files (use --force to re-download)\n", preSkipped)
	}

	printer := app.NewProgressPrinter(os.Stdout, 1)
	engine.SetProgress(printer.Report)

	// --force means a full redo, so resume filtering is bypassed as well.
	var stats *domain.BatchStats
	if force {
		stats, err = engine.DownloadBatch(ctx, items, outputFolder, true)
	} else {
		stats, err = engine.DownloadBatchWithResume(ctx, items, outputFolder, name, true)
	}
	if err != nil {
		return nil, err
	}
	stats.Skipped += preSkipped

	fmt.Println("  " + stats.Summary())
	printErrors(stats)

	recordRun(config, name, stats, log)

	if stats.Failed > 0 {
		return stats, fmt.Errorf("%d points failed", stats.Failed)
	}
	return stats, nil
}

// printErrors lists failed points, capped so a wholesale outage does not
// scroll the summary away.
func printErrors(stats *domain.BatchStats) {
	const maxShown = 10
	for i, e := range stats.Errors {
		if i == maxShown {
			fmt.Printf("  ... and %d more\n", len(stats.Errors)-maxShown)
			break
		}
		fmt.Printf("  FAILED %s: %s\n", e.Point, e.Message)
	}
}

// recordRun appends the batch outcome to the run-history database.
// History is informational, so failure to record never fails the run.
func recordRun(config *domain.Config, district string, stats *domain.BatchStats, log *zap.Logger) {
	repo, err := infrastructure.NewSQLiteRunRepository(config.History.DatabasePath)
	if err != nil {
		log.Warn("Failed to open run history", zap.Error(err))
		return
	}
	defer repo.Close()

	if err := repo.Create(domain.NewRun(district, stats)); err != nil {
		log.Warn("Failed to record run", zap.Error(err))
	}
}

var districtsCmd = &cobra.Command{
	Use:   "districts",
	Short: "List configured districts",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		fs := afero.NewOsFs()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DISTRICT\tADDRESS\tPOINT LIST\tCREDENTIALS\tVPN")
		for _, name := range app.DistrictNames(config) {
			cfg, _ := lookupDistrict(config, name)

			address := cfg.BaseAddress
			if !cfg.HasBaseAddress() {
				address = "-"
			}

			pointList := "none"
			if cfg.HasBaseAddress() {
				if gen, err := app.NewURLGenerator(fs, name, cfg, config.OutputDir); err == nil && gen.HasPointList() {
					pointList = fmt.Sprintf("%d points (%s)", gen.PointCount(), gen.PointListSource())
				}
			}

			creds := "-"
			if infrastructure.DistrictCredentials(name).IsSet() {
				creds = "yes"
			}

			vpn := cfg.VPN
			if vpn == "" {
				vpn = "-"
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name, address, pointList, creds, vpn)
		}
		return w.Flush()
	},
}

var credsCmd = &cobra.Command{
	Use:   "creds",
	Short: "Show which districts have credentials in the environment",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		configured := infrastructure.ConfiguredDistricts()
		if len(configured) == 0 {
			fmt.Println("No district credentials found in environment or .env")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DISTRICT\tUSER\tVPN USER")
		for _, name := range configured {
			creds := infrastructure.DistrictCredentials(name)
			vpn := infrastructure.VPNCredentials(name)
			vpnUser := "-"
			if vpn.IsSet() {
				vpnUser = vpn.Username
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", name, creds.Username, vpnUser)
		}
		return w.Flush()
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded download runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		district, _ := cmd.Flags().GetString("district")
		limit, _ := cmd.Flags().GetInt("limit")

		config, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		repo, err := infrastructure.NewSQLiteRunRepository(config.History.DatabasePath)
		if err != nil {
			return fmt.Errorf("open run history: %w", err)
		}
		defer repo.Close()

		var runs []*domain.Run
		if district != "" {
			runs, err = repo.FindByDistrict(strings.ToUpper(district), limit)
		} else {
			runs, err = repo.FindRecent(limit)
		}
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No recorded runs")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tDISTRICT\tTOTAL\tOK\tFAIL\tEMPTY\tSKIP\tDURATION")
		for _, run := range runs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
				run.StartedAt.Format("2006-01-02 15:04"),
				run.District,
				run.Total, run.Success, run.Failed, run.Empty, run.Skipped,
				run.Duration().Round(time.Second))
		}
		return w.Flush()
	},
}

func init() {
	downloadCmd.Flags().StringP("district", "d", "", "District to download")
	downloadCmd.Flags().Bool("all-districts", false, "Download every configured district")
	downloadCmd.Flags().Int("days", 0, "Days of history to request (default from config)")
	downloadCmd.Flags().String("start", "", "Window start date (YYYY-MM-DD)")
	downloadCmd.Flags().String("end", "", "Window end date (YYYY-MM-DD)")
	downloadCmd.Flags().IntP("workers", "w", 0, "Worker pool size (default from config)")
	downloadCmd.Flags().Duration("throttle", 0, "Base per-request delay (e.g. 250ms)")
	downloadCmd.Flags().StringP("output", "o", "", "Output directory root")
	downloadCmd.Flags().BoolP("force", "f", false, "Re-download points with existing files")
	downloadCmd.Flags().String("cookie", "", "Session cookie (name=value pairs or bare JSESSIONID value)")

	historyCmd.Flags().StringP("district", "d", "", "Filter by district")
	historyCmd.Flags().IntP("limit", "n", 20, "Number of runs to show")
}

// setup loads config, .env and the logger shared by every subcommand.
func setup() (*domain.Config, *zap.Logger, error) {
	config, err := app.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
		FilePath:   config.Logging.FilePath,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	infrastructure.LoadDotEnv(log)
	return config, log, nil
}

// resolveWindow turns --start/--end/--days into a concrete date range.
func resolveWindow(startStr, endStr string, days int) (app.DateRange, error) {
	if startStr == "" && endStr == "" {
		return app.LastDays(days), nil
	}
	if startStr == "" || endStr == "" {
		return app.DateRange{}, fmt.Errorf("--start and --end must be given together")
	}

	start, err := time.ParseInLocation(dateLayout, startStr, time.Local)
	if err != nil {
		return app.DateRange{}, fmt.Errorf("invalid --start: %w", err)
	}
	end, err := time.ParseInLocation(dateLayout, endStr, time.Local)
	if err != nil {
		return app.DateRange{}, fmt.Errorf("invalid --end: %w", err)
	}
	if end.Before(start) {
		return app.DateRange{}, fmt.Errorf("--end is before --start")
	}
	return app.DateRange{Start: start, End: end}, nil
}

func lookupDistrict(config *domain.Config, name string) (domain.District, bool) {
	for key, cfg := range config.Districts {
		if strings.EqualFold(key, name) {
			return cfg, true
		}
	}
	return domain.District{}, false
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
