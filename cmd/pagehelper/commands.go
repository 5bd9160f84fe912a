package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/v0xg/pagehelper/internal/ai"
	"github.com/v0xg/pagehelper/internal/browser"
	"github.com/v0xg/pagehelper/internal/dom/htmldom"
	"github.com/v0xg/pagehelper/internal/finder"
	"github.com/v0xg/pagehelper/internal/helper"
	"github.com/v0xg/pagehelper/internal/plan"
	"github.com/v0xg/pagehelper/internal/report"
	"github.com/v0xg/pagehelper/internal/runner"
	"go.uber.org/zap"
)

// errNotPassed makes the process exit non-zero when a suite has failures.
var errNotPassed = errors.New("not every case passed")

func newFindCmd(a *app) *cobra.Command {
	var text, tag, role, selector string
	cmd := &cobra.Command{
		Use:   "find <url> [description]",
		Short: "Find elements and print them as JSON",
		Long: `Find elements on a page. With a description the quick finder is used,
which also looks for buttons or inputs when the description mentions them.
Otherwise exactly the given --text, --tag, --role or --selector is searched.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withPage(cmd.Context(), args[0], func(ctx context.Context, _ *browser.Browser, h *helper.Helper) error {
				var (
					records []finder.Record
					err     error
				)
				switch {
				case len(args) == 2:
					records, err = h.QuickFind(ctx, args[1])
				case selector != "":
					records, err = h.Find.FindBySelector(ctx, selector)
				case role != "":
					records, err = h.Find.FindByRole(ctx, role)
				case tag != "" && text == "":
					records, err = h.Find.FindByTagAndText(ctx, tag, "")
				case text != "":
					records, err = h.Find.FindByText(ctx, text, tag)
				default:
					return errors.New("give a description or one of --text, --tag, --role, --selector")
				}
				if err != nil {
					return err
				}
				return printJSON(a.out, records)
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "Visible text to search for")
	cmd.Flags().StringVar(&tag, "tag", "", "Restrict to a tag name")
	cmd.Flags().StringVar(&role, "role", "", "ARIA role to search for")
	cmd.Flags().StringVar(&selector, "selector", "", "CSS selector")
	return cmd
}

func newElementsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "elements <url>",
		Short: "Print the visible interactive elements of a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withPage(cmd.Context(), args[0], func(ctx context.Context, _ *browser.Browser, h *helper.Helper) error {
				snap, err := h.Snapshot(ctx)
				if err != nil {
					return err
				}
				return printJSON(a.out, snap)
			})
		},
	}
}

func newRunCmd(a *app) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "run <suite-file>",
		Short: "Run a test suite in a browser and write reports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			suite, err := plan.Load(args[0])
			if err != nil {
				return err
			}
			if url != "" {
				suite.URL = url
			}
			if suite.URL == "" {
				return errors.New("suite has no url; pass --url")
			}

			return a.withPage(cmd.Context(), suite.URL, func(ctx context.Context, b *browser.Browser, h *helper.Helper) error {
				opts := []runner.Option{runner.WithLogger(a.logger)}
				if a.cfg.Report.Screenshots {
					opts = append(opts, runner.WithScreenshotter(b))
				}
				return a.runSuite(ctx, h, suite, opts...)
			})
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Page to test (overrides the suite url)")
	return cmd
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <html-file> <suite-file>",
		Short: "Run a test suite against a static HTML file without a browser",
		Long: `Run a suite against a saved HTML page. Scripts are not executed, so only
operations whose effect is visible in the markup itself can be checked.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			suite, err := plan.Load(args[1])
			if err != nil {
				return err
			}
			doc, err := loadHTML(args[0], suite.URL)
			if err != nil {
				return err
			}
			if suite.URL == "" {
				suite.URL, _ = doc.URL(cmd.Context())
			}

			h := helper.Install(doc, helper.WithLogger(a.logger), helper.WithExecutorOptions(a.executorOptions()))
			defer helper.Uninstall(doc)
			return a.runSuite(cmd.Context(), h, suite, runner.WithLogger(a.logger))
		},
	}
}

func newPlanCmd(a *app) *cobra.Command {
	var provider, model, output string
	cmd := &cobra.Command{
		Use:   "plan <url> <prompt>",
		Short: "Generate a test case from a natural language request",
		Long: `plan opens the page, describes it to an AI model and prints the generated
test case as YAML.

Example:
  pagehelper plan "https://myapp.test" "log in with demo/demo and check the dashboard loads"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.AI
			if provider != "" {
				cfg.Provider = provider
			}
			if model != "" {
				cfg.Model = model
			}

			return a.withPage(cmd.Context(), args[0], func(ctx context.Context, b *browser.Browser, h *helper.Helper) error {
				snap, err := h.Snapshot(ctx)
				if err != nil {
					return err
				}
				html, err := b.HTML(ctx)
				if err != nil {
					a.logger.Warn("Could not read page HTML.", zap.Error(err))
				}

				p, err := ai.NewProvider(ctx, cfg, a.logger)
				if err != nil {
					return fmt.Errorf("AI provider init failed: %w", err)
				}
				c, err := p.GenerateCase(ctx, ai.NewPage(snap, html), args[1])
				if err != nil {
					return fmt.Errorf("case generation failed: %w", err)
				}

				data, err := plan.MarshalCase(*c)
				if err != nil {
					return err
				}
				if output == "" {
					_, err = a.out.Write(data)
					return err
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "✓ Saved to %s\n", output)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "AI provider: claude, openai, gemini (default: from config)")
	cmd.Flags().StringVar(&model, "model", "", "Specific model override")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the case to a file instead of stdout")
	return cmd
}

// withPage launches the browser, opens url with a helper installed and hands
// both to fn.
func (a *app) withPage(ctx context.Context, url string, fn func(context.Context, *browser.Browser, *helper.Helper) error) error {
	b, err := browser.Launch(ctx, browser.OptionsFromConfig(a.cfg), a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			a.logger.Warn("Browser close failed.", zap.Error(err))
		}
	}()

	doc, err := b.Open(ctx, url)
	if err != nil {
		return err
	}
	h := helper.Install(doc, helper.WithLogger(a.logger), helper.WithExecutorOptions(a.executorOptions()))
	defer helper.Uninstall(doc)
	return fn(ctx, b, h)
}

func (a *app) runSuite(ctx context.Context, h *helper.Helper, suite *plan.Suite, opts ...runner.Option) error {
	result := runner.New(h, opts...).Run(ctx, suite)

	paths, err := report.NewWriter(afero.NewOsFs(), a.cfg.Report, a.logger).Write(ctx, result)
	if err != nil {
		return fmt.Errorf("write reports: %w", err)
	}
	printSummary(a.out, result, paths)

	sum := result.Summary()
	if sum.Passed != sum.Total {
		return errNotPassed
	}
	return nil
}

// loadHTML parses a saved page. Without a url the file's own location is used.
func loadHTML(path, url string) (*htmldom.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if url == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		url = "file://" + filepath.ToSlash(abs)
	}
	return htmldom.Parse(f, url)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
