package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/frederic-klein/yapi/internal/builder"
	"github.com/frederic-klein/yapi/internal/config"
	"github.com/frederic-klein/yapi/internal/dist"
	"github.com/frederic-klein/yapi/internal/downloader"
	"github.com/frederic-klein/yapi/internal/extractor"
	"github.com/frederic-klein/yapi/internal/index"
	"github.com/frederic-klein/yapi/internal/logging"
	"github.com/frederic-klein/yapi/internal/requirements"
	"github.com/frederic-klein/yapi/internal/resolver"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// selection holds the flags shared by fetch and show.
type selection struct {
	fetchSitePackages bool
	includeBinary     bool
	requirementsFile  string
	useVersions       bool
	versionsSection   string
}

func (s *selection) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("index-url", "u", nil, "Package index URL, repeatable (default https://pypi.org/simple)")
	cmd.Flags().StringSliceP("find-links", "l", nil, "Extra page, directory or archive URL to search, repeatable")
	cmd.Flags().BoolVarP(&s.fetchSitePackages, "fetch-site-packages", "f", false, "Add every installed distribution on the search path")
	cmd.Flags().BoolVarP(&s.includeBinary, "include-binary-eggs", "b", false, "Accept binary distributions")
	cmd.Flags().StringVarP(&s.requirementsFile, "requirements", "r", "", "Read requirements from a requirements file")
	cmd.Flags().BoolVarP(&s.useVersions, "use-versions", "V", false, "Add requirements from a versions section of the config file")
	cmd.Flags().StringVarP(&s.versionsSection, "versions-section", "S", "", "Versions section to use (implies --use-versions, default \"versions\")")
	cmd.Flags().IntP("workers", "w", 4, "Parallel workers")
}

// requirements collects requirements from args, the requirements file and
// the versions section. Index URLs and find-links declared in the
// requirements file are merged into cfg. With no index configured at all
// the resolver falls back to index.DefaultIndexURL.
func (s *selection) requirements(cfg *config.Config, args []string) ([]dist.Requirement, error) {
	reqs, err := dist.ParseRequirements(args)
	if err != nil {
		return nil, err
	}

	if s.requirementsFile != "" {
		result, err := requirements.NewParser().Parse(s.requirementsFile)
		if err != nil {
			return nil, fmt.Errorf("parsing requirements: %w", err)
		}
		reqs = append(reqs, result.Requirements...)
		cfg.IndexURLs = result.IndexURLs(cfg.IndexURLs)
		cfg.FindLinks = append(cfg.FindLinks, result.FindLinks...)
	}

	if s.useVersions || s.versionsSection != "" {
		name := s.versionsSection
		if name == "" {
			name = "versions"
		}
		section, err := cfg.Section(name)
		if err != nil {
			return nil, err
		}
		versioned, err := dist.ParseRequirements(requirements.ExpandVersions(section))
		if err != nil {
			return nil, fmt.Errorf("versions section %s: %w", name, err)
		}
		reqs = append(reqs, versioned...)
	}
	return reqs, nil
}

func (s *selection) options(cfg *config.Config) resolver.Options {
	return resolver.Options{
		IndexURLs:         cfg.IndexURLs,
		FindLinks:         cfg.FindLinks,
		SourceOnly:        cfg.SourceOnly && !s.includeBinary,
		FetchSitePackages: s.fetchSitePackages,
		SearchPath:        cfg.SearchPath,
		KeepTempDir:       cfg.KeepTempDir,
		Workers:           cfg.Workers,
	}
}

func newResolver(cfg *config.Config, opts resolver.Options, logger *log.Logger) *resolver.Resolver {
	factory := index.NewFactory(index.Options{
		Downloader: downloader.NewDownloader(cfg.Workers, nil),
		SearchPath: cfg.SearchPath,
		Logger:     logger,
	})
	return resolver.New(factory, opts, logger)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "yapi",
		Short:         "Yet Another Package Indexer - builds and populates static package indexes",
		Long:          "YAPI fetches source distributions from package indexes and find-links sources, and builds a static simple index from a directory of archives.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringP("path", "p", ".", "Distribution directory")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Only log warnings and errors")

	load := func(cmd *cobra.Command) (*config.Config, *log.Logger, error) {
		cfg, err := config.Load(config.LoadOptions{ConfigFile: configFile, Flags: cmd.Flags()})
		if err != nil {
			return nil, nil, err
		}
		logger := newLogger(stderr, cfg)
		return cfg, logger, nil
	}

	commands := []*cobra.Command{
		newFetchCmd(load),
		newIndexCmd(load),
		newShowCmd(load),
		newVersionCmd(),
	}
	rootCmd.AddCommand(commands...)

	return rootCmd
}

type loadFunc func(cmd *cobra.Command) (*config.Config, *log.Logger, error)

func newLogger(w io.Writer, cfg *config.Config) *log.Logger {
	logger := logging.New(w, cfg.Verbose)
	if cfg.Quiet {
		logger.SetLevel(log.WarnLevel)
	}
	return logger
}

func newFetchCmd(load loadFunc) *cobra.Command {
	var (
		sel        selection
		reportPath string
	)

	cmd := &cobra.Command{
		Use:   "fetch [REQUIREMENT...]",
		Short: "Download source distributions satisfying requirements",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load(cmd)
			if err != nil {
				return err
			}

			reqs, err := sel.requirements(cfg, args)
			if err != nil {
				return err
			}

			logger.Debug("fetching", "requirements", len(reqs), "target", cfg.Path)
			report, err := newResolver(cfg, sel.options(cfg), logger).Fetch(cmd.Context(), reqs, cfg.Path)
			if err != nil {
				return fmt.Errorf("fetching distributions: %w", err)
			}

			if reportPath != "" {
				if err := writeReport(reportPath, report); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for _, req := range report.NotFound {
				fmt.Fprintf(out, "Not found: %s\n", req)
			}
			fmt.Fprintf(out, "Fetched %d distributions into %s (%d not found, %d query errors)\n",
				len(report.Files), report.Target, len(report.NotFound), len(report.Errors))
			return nil
		},
	}

	sel.register(cmd)
	cmd.Flags().BoolP("keep-tempdir", "k", false, "Keep the temporary download directory")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a YAML report of the run to this file")

	return cmd
}

func writeReport(path string, report *resolver.Report) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

func newIndexCmd(load loadFunc) *cobra.Command {
	var indexName string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build a simple index from the distributions in --path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load(cmd)
			if err != nil {
				return err
			}

			runner := extractor.NewScriptRunner(cfg.BuildScript.Interpreter, cfg.BuildScript.Timeout)
			b := builder.New(extractor.New(runner, logger), cfg.Workers, logger)

			summary, err := b.Build(cmd.Context(), cfg.Path, indexName)
			if err != nil {
				return fmt.Errorf("building index: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d projects (%d files, %d skipped) in %s\n",
				summary.Projects, summary.Classified, summary.Skipped, summary.IndexDir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&indexName, "index-name", "n", builder.DefaultIndexName, "Name of the index directory")
	cmd.Flags().IntP("workers", "w", 4, "Parallel metadata extractions")
	cmd.Flags().String("interpreter", extractor.DefaultInterpreter, "Interpreter running setup.py")
	cmd.Flags().Duration("script-timeout", extractor.DefaultTimeout, "Time limit for one setup.py run")

	return cmd
}

func newShowCmd(load loadFunc) *cobra.Command {
	var (
		sel       selection
		onlyBest  bool
		developOK bool
		output    string
	)

	cmd := &cobra.Command{
		Use:   "show [REQUIREMENT...]",
		Short: "Show the distributions each index offers for requirements",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "text" && output != "yaml" {
				return fmt.Errorf("unknown output format %q", output)
			}

			cfg, logger, err := load(cmd)
			if err != nil {
				return err
			}

			reqs, err := sel.requirements(cfg, args)
			if err != nil {
				return err
			}

			opts := sel.options(cfg)
			opts.DevelopOK = developOK
			opts.OnlyBest = onlyBest

			listings, err := newResolver(cfg, opts, logger).Show(cmd.Context(), reqs)
			if err != nil {
				return fmt.Errorf("showing distributions: %w", err)
			}

			if output == "yaml" {
				return yaml.NewEncoder(cmd.OutOrStdout()).Encode(listings)
			}
			writeListings(cmd.OutOrStdout(), listings)
			return nil
		},
	}

	sel.register(cmd)
	cmd.Flags().BoolVarP(&onlyBest, "show-only-best", "o", false, "Show only the best match per index")
	cmd.Flags().BoolVarP(&developOK, "include-develop-eggs", "d", false, "Include development and system eggs")
	cmd.Flags().StringVar(&output, "output", "text", "Output format: text or yaml")

	return cmd
}

func writeListings(w io.Writer, listings []resolver.Listing) {
	const rule = "=================================================="

	current := ""
	for _, l := range listings {
		if l.IndexURL != current {
			current = l.IndexURL
			fmt.Fprintln(w, rule)
			fmt.Fprintf(w, "Package index: %s\n", l.IndexURL)
			fmt.Fprintln(w, rule)
		}
		fmt.Fprintf(w, "Candidates: %s\n", l.Requirement)
		if l.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", l.Error)
			continue
		}
		for _, d := range l.Distributions {
			fmt.Fprintf(w, "%s: %s\n", d.Project, d.Location)
		}
	}
	if len(listings) > 0 {
		fmt.Fprintln(w, rule)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the yapi version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "yapi %s\n", version)
		},
	}
}
