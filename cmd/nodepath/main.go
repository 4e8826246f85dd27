package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/andybalholm/cascadia"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/v0xg/nodepath/internal/config"
	"github.com/v0xg/nodepath/internal/crawler"
	"github.com/v0xg/nodepath/internal/finder"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

var (
	configPath string
	threshold  int
	verbose    bool
	width      int
	height     int
	profile    string

	logger *zap.Logger
	rules  *config.Config
)

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "nodepath",
		Short: "Compute short, unique CSS paths for elements of a page",
		Long: `nodepath computes the cheapest CSS selector path that singles out an
element, falling back to the element's text content when structure alone
cannot tell it apart from its look-alikes.

Example:
  nodepath select page.html "ul li:nth-of-type(3) span"
  nodepath crawl https://example.com`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logger.Sync()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML rules file (default: $"+config.EnvConfig+")")
	rootCmd.PersistentFlags().IntVar(&threshold, "threshold", 0, "Max combinations tried per richness level (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed progress")

	selectCmd := &cobra.Command{
		Use:   "select <file|-> <css-query>",
		Short: "Print the path of every element matching a query",
		Args:  cobra.ExactArgs(2),
		RunE:  runSelect,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze <file|->",
		Short: "List interactive elements of a saved page with their paths",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}

	crawlCmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Open a page in a headless browser and list its interactive elements",
		Args:  cobra.ExactArgs(1),
		RunE:  runCrawl,
	}
	crawlCmd.Flags().IntVar(&width, "width", 1280, "Viewport width")
	crawlCmd.Flags().IntVar(&height, "height", 720, "Viewport height")
	crawlCmd.Flags().StringVar(&profile, "profile", "", "Chrome/Chromium profile directory for authenticated sessions (close browser first)")

	rootCmd.AddCommand(selectCmd, analyzeCmd, crawlCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(*cobra.Command, []string) error {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	var err error
	if logger, err = cfg.Build(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	path := configPath
	if path == "" {
		path = os.Getenv(config.EnvConfig)
	}
	if path != "" {
		if rules, err = config.LoadFile(path); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Debug("config loaded", zap.String("path", path))
	} else {
		rules = config.Default()
	}

	if err := rules.ApplyEnv(os.Getenv); err != nil {
		return err
	}
	if threshold > 0 {
		rules.Threshold = threshold
	}
	return nil
}

func readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

type selection struct {
	Target      int               `json:"target"`
	Query       string            `json:"query,omitempty"`
	Penalty     float64           `json:"penalty,omitempty"`
	Fragments   []finder.Fragment `json:"fragments,omitempty"`
	Combinators []string          `json:"combinators,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func runSelect(cmd *cobra.Command, args []string) error {
	raw, err := readInput(args[0])
	if err != nil {
		return err
	}
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("parse HTML: %w", err)
	}
	sel, err := cascadia.Compile(args[1])
	if err != nil {
		return fmt.Errorf("query %q: %w", args[1], err)
	}
	opts, err := rules.Options(doc, logger)
	if err != nil {
		return err
	}

	targets := cascadia.QueryAll(doc, sel)
	if len(targets) == 0 {
		return fmt.Errorf("query %q matched no element", args[1])
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	var failed int
	for i, target := range targets {
		out := selection{Target: i}
		res, err := finder.Find(target, opts)
		switch {
		case errors.Is(err, finder.ErrInvariant):
			return err
		case err != nil:
			failed++
			out.Error = err.Error()
		default:
			out.Query = res.Query
			out.Penalty = res.Penalty
			out.Fragments = res.Fragments
			out.Combinators = res.Combinators
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d elements have no unique path", failed, len(targets))
	}
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	raw, err := readInput(args[0])
	if err != nil {
		return err
	}
	pm, err := crawler.Analyze(raw, args[0], crawler.Options{Rules: rules, Logger: logger})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), pm)
}

func runCrawl(cmd *cobra.Command, args []string) error {
	url := args[0]

	fmt.Fprintf(cmd.ErrOrStderr(), "→ Crawling %s... ", url)
	pm, browser, err := crawler.Crawl(url, crawler.Options{
		Width:      width,
		Height:     height,
		ProfileDir: profile,
		Rules:      rules,
		Logger:     logger,
	})
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "failed")
		return fmt.Errorf("crawl failed: %w", err)
	}
	defer browser.Close()
	fmt.Fprintf(cmd.ErrOrStderr(), "done (found %d interactive elements)\n", len(pm.Elements))

	// Check the paths against the live page before reporting them.
	for _, el := range pm.Elements {
		if _, err := browser.Locate(el); err != nil {
			logger.Warn("path does not resolve on live page",
				zap.String("selector", el.Selector), zap.Error(err))
		}
	}

	return printJSON(cmd.OutOrStdout(), pm)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
