package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/hca-tools/smart-sync/internal/layout"
	"github.com/hca-tools/smart-sync/internal/settings"
	"github.com/hca-tools/smart-sync/pkg/engine"
	"github.com/hca-tools/smart-sync/pkg/planner"
	"github.com/hca-tools/smart-sync/pkg/s3client"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configFile  string
	localPath   string
	bucket      string
	environment string
	profile     string
	region      string
	excludes    []string
	concurrency int
	force       bool
	dryRun      bool
	planOnly    bool
	assumeYes   bool
	quiet       bool
)

const toolName = "hca-smart-sync"

func main() {
	rootCmd := &cobra.Command{
		Use:   "smart-sync",
		Short: "Checksum-verified dataset uploads for HCA atlas submissions",
		Long: `smart-sync uploads atlas dataset files to the submission bucket,
skipping files whose remote copy already carries a matching SHA-256
fingerprint. Interrupted runs are safe to re-run.`,
		Version:       fmt.Sprintf("%s (commit: %s, built at: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	syncCmd := &cobra.Command{
		Use:   "sync <atlas> [file-type]",
		Short: "Scan, plan and upload dataset files for one atlas",
		Long: `sync scans the local directory for tracked dataset files, compares
them against the remote destination by SHA-256 fingerprint and uploads
only what is new or changed. The destination prefix is derived from the
atlas name: <bionetwork>/<atlas>/<file-type>/.

file-type is one of source-datasets (default) or integrated-objects.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runSync,
	}

	syncCmd.Flags().StringVar(&localPath, "path", ".", "Local directory to scan")
	syncCmd.Flags().StringVar(&bucket, "bucket", "", "Destination bucket (overrides the environment default)")
	syncCmd.Flags().StringVar(&environment, "environment", "", "Target environment: prod or dev")
	syncCmd.Flags().StringVar(&profile, "profile", "", "AWS profile to use")
	syncCmd.Flags().StringVar(&region, "region", "", "AWS region (uses default if not specified)")
	syncCmd.Flags().StringSliceVar(&excludes, "exclude", nil, "Exclude patterns (multiple allowed)")
	syncCmd.Flags().IntVar(&concurrency, "concurrency", 0, "Number of concurrent operations")
	syncCmd.Flags().BoolVar(&force, "force", false, "Upload files even when the remote fingerprint matches")
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the plan without uploading")
	syncCmd.Flags().BoolVar(&planOnly, "plan-only", false, "Alias for --dry-run")
	syncCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	syncCmd.Flags().BoolVar(&quiet, "quiet", false, "Suppress non-error output")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		RunE:  runConfig,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML settings file")
	rootCmd.AddCommand(syncCmd, configCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadSettings(cmd *cobra.Command) (settings.Settings, error) {
	cfg, err := settings.Load(configFile)
	if err != nil {
		return cfg, err
	}

	// Flags win over the settings file and environment.
	if cmd.Flags().Changed("environment") {
		cfg.Environment = environment
	}
	if cmd.Flags().Changed("bucket") {
		cfg.Bucket = bucket
	}
	if cmd.Flags().Changed("profile") {
		cfg.AWS.Profile = profile
	}
	if cmd.Flags().Changed("region") {
		cfg.AWS.Region = region
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Concurrency = concurrency
	}
	if len(excludes) > 0 {
		cfg.Excludes = append(cfg.Excludes, excludes...)
	}

	switch cfg.Environment {
	case "prod", "dev":
	default:
		return cfg, fmt.Errorf("unknown environment %q (expected prod or dev)", cfg.Environment)
	}
	return cfg, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if quiet {
		level = slog.LevelWarn
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
}

func runSync(cmd *cobra.Command, args []string) error {
	atlas := args[0]
	fileType := layout.FileTypeSourceDatasets
	if len(args) == 2 {
		var err error
		fileType, err = layout.ParseFileType(args[1])
		if err != nil {
			return err
		}
	}

	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	logger := newLogger()
	slog.SetDefault(logger)

	dest, err := layout.NewDestination(cfg.ResolveBucket(), atlas, fileType, cfg.Bionetworks)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	// One run per destination prefix at a time on this machine; a
	// second run would race the first's remote baseline.
	lock := flock.New(lockPath(dest))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire destination lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another sync for %s is already running", dest.URI())
	}
	defer lock.Unlock()

	var awsOpts []func(*config.LoadOptions) error
	if cfg.AWS.Profile != "" {
		awsOpts = append(awsOpts, config.WithSharedConfigProfile(cfg.AWS.Profile))
	}
	if cfg.AWS.Region != "" {
		awsOpts = append(awsOpts, config.WithRegion(cfg.AWS.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	opts := engine.Options{
		LocalPath:        localPath,
		Destination:      dest,
		TrackedExtension: cfg.TrackedExtension,
		Excludes:         cfg.Excludes,
		Concurrency:      cfg.Concurrency,
		Force:            force,
		DryRun:           dryRun || planOnly,
		Tool:             toolName,
		Version:          version,
	}
	if !assumeYes && !opts.DryRun {
		opts.Confirm = confirmPlan
	}

	eng := engine.New(s3client.NewAWSClient(awsCfg), logger)
	report, err := eng.Run(ctx, opts)
	if err != nil {
		return err
	}

	return printReport(report, opts.DryRun)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := settings.Load(configFile)
	if err != nil {
		return err
	}

	fmt.Printf("environment:       %s\n", cfg.Environment)
	fmt.Printf("bucket:            %s\n", cfg.ResolveBucket())
	fmt.Printf("tracked extension: %s\n", cfg.TrackedExtension)
	fmt.Printf("concurrency:       %d\n", cfg.Concurrency)
	fmt.Printf("aws profile:       %s\n", orDefault(cfg.AWS.Profile, "(default)"))
	fmt.Printf("aws region:        %s\n", cfg.AWS.Region)
	if len(cfg.Excludes) > 0 {
		fmt.Printf("excludes:          %s\n", strings.Join(cfg.Excludes, ", "))
	}
	for atlas, network := range cfg.Bionetworks {
		fmt.Printf("bionetwork:        %s -> %s\n", atlas, network)
	}
	return nil
}

// lockPath derives a per-destination lock file under the system temp
// directory.
func lockPath(dest layout.Destination) string {
	name := strings.NewReplacer("/", "_", ":", "_").Replace(dest.Bucket + "_" + dest.Prefix())
	return filepath.Join(os.TempDir(), "smart-sync-"+name+".lock")
}

func confirmPlan(plan *planner.Plan) bool {
	printPlan(plan)

	fmt.Printf("\nProceed with upload? [y/N]: ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

func printPlan(plan *planner.Plan) {
	fmt.Printf("\nDestination: %s\n\n", plan.Destination.URI())

	for _, e := range plan.Uploads() {
		fmt.Printf("  upload  %-40s  %8s  (%s)\n",
			e.File.RelPath, humanize.Bytes(uint64(e.File.Size)), e.Reason)
	}

	newCount, changed, unchanged := plan.Counts()
	fmt.Printf("\n%d new, %d changed, %d unchanged; %s to upload\n",
		newCount, changed, unchanged, humanize.Bytes(uint64(plan.TotalUploadBytes())))
}

func printReport(report *engine.Report, planned bool) error {
	if planned {
		printPlan(report.Plan)
		fmt.Println("\nDry run, nothing uploaded.")
		return nil
	}

	if report.Cancelled {
		fmt.Println("Cancelled, nothing uploaded.")
		return nil
	}

	if report.Outcome == nil {
		return nil
	}

	var uploaded, skipped int
	for _, r := range report.Outcome.Succeeded {
		if r.Skipped {
			skipped++
		} else {
			uploaded++
		}
	}

	if !quiet {
		fmt.Printf("\n%d uploaded, %d already current", uploaded, skipped)
		if n := len(report.SkippedLocal); n > 0 {
			fmt.Printf(", %d unreadable local files skipped", n)
		}
		fmt.Println()
		if report.ManifestPath != "" {
			fmt.Printf("Manifest: %s\n", report.ManifestPath)
		}
	}

	if report.ManifestUploadErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: manifest was not mirrored remotely: %v\n", report.ManifestUploadErr)
	}

	if failed := len(report.Outcome.Failed); failed > 0 {
		for _, r := range report.Outcome.Failed {
			fmt.Fprintf(os.Stderr, "Failed: %s: %v\n", r.Entry.Key, r.Err)
		}
		return fmt.Errorf("%d uploads failed; re-run to retry the failed files", failed)
	}

	return nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
