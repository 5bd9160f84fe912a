// Package report writes suite results as JSON, Markdown and a standalone HTML
// page with screenshot thumbnails.
package report

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"path/filepath"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/spf13/afero"
	"github.com/v0xg/pagehelper/internal/config"
	"github.com/v0xg/pagehelper/internal/runner"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Report formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

const thumbnailDir = "thumbnails"

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	markdownTemplate = texttemplate.Must(texttemplate.New("report.md.tmpl").
				Funcs(texttemplate.FuncMap{"icon": icon, "cell": cell}).
				ParseFS(templateFS, "templates/report.md.tmpl"))
	htmlTemplate = htmltemplate.Must(htmltemplate.New("report.html.tmpl").
			Funcs(htmltemplate.FuncMap{"icon": icon}).
			ParseFS(templateFS, "templates/report.html.tmpl"))
)

// Writer renders results into a directory.
type Writer struct {
	fs         afero.Fs
	dir        string
	formats    []string
	thumbWidth uint
	logger     *zap.Logger
	now        func() time.Time
}

// NewWriter creates a Writer that stores files on fs under cfg.Dir.
func NewWriter(fs afero.Fs, cfg config.ReportConfig, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	formats := cfg.Formats
	if len(formats) == 0 {
		formats = []string{FormatJSON, FormatMarkdown, FormatHTML}
	}
	width := uint(0)
	if cfg.ThumbnailWidth > 0 {
		width = uint(cfg.ThumbnailWidth)
	}
	return &Writer{
		fs:         fs,
		dir:        cfg.Dir,
		formats:    formats,
		thumbWidth: width,
		logger:     logger.Named("report"),
		now:        time.Now,
	}
}

type shot struct {
	Full  string // link to the original screenshot
	Thumb string // scaled copy shown inline
}

type caseView struct {
	runner.CaseResult
	Index int
	Shots []shot
}

type view struct {
	Result    *runner.SuiteResult
	Summary   runner.Summary
	Generated time.Time
	Cases     []caseView
}

type jsonReport struct {
	*runner.SuiteResult
	Summary runner.Summary `json:"summary"`
}

// Write renders every configured format and returns the paths written.
func (w *Writer) Write(ctx context.Context, result *runner.SuiteResult) ([]string, error) {
	if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	v := view{Result: result, Summary: result.Summary(), Generated: w.now()}
	for i, c := range result.Cases {
		cv := caseView{CaseResult: c, Index: i + 1}
		for _, p := range c.Screenshots {
			rel := w.relative(p)
			cv.Shots = append(cv.Shots, shot{Full: rel, Thumb: rel})
		}
		v.Cases = append(v.Cases, cv)
	}

	base := baseName(result.Name)
	var written []string
	for _, format := range w.formats {
		var (
			name string
			buf  bytes.Buffer
			err  error
		)
		switch format {
		case FormatJSON:
			name = base + "_results.json"
			enc := json.NewEncoder(&buf)
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			err = enc.Encode(jsonReport{SuiteResult: result, Summary: v.Summary})
		case FormatMarkdown:
			name = base + "_report.md"
			err = markdownTemplate.Execute(&buf, v)
		case FormatHTML:
			name = base + "_visualization.html"
			if err = w.thumbnails(ctx, result, &v); err == nil {
				err = htmlTemplate.Execute(&buf, v)
			}
		default:
			return written, fmt.Errorf("unknown report format %q", format)
		}
		if err != nil {
			return written, fmt.Errorf("render %s report: %w", format, err)
		}

		path := filepath.Join(w.dir, name)
		if err := afero.WriteFile(w.fs, path, buf.Bytes(), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		w.logger.Info("Report written.", zap.String("format", format), zap.String("path", path))
		written = append(written, path)
	}
	return written, nil
}

// thumbnails scales every screenshot for the HTML page. A screenshot that
// cannot be scaled is linked at full size.
func (w *Writer) thumbnails(ctx context.Context, result *runner.SuiteResult, v *view) error {
	if w.thumbWidth == 0 {
		return nil
	}
	if err := w.fs.MkdirAll(filepath.Join(w.dir, thumbnailDir), 0o755); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for ci, c := range result.Cases {
		for si, src := range c.Screenshots {
			name := fmt.Sprintf("%02d_%02d.png", ci+1, si+1)
			target := &v.Cases[ci].Shots[si]
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				dst := filepath.Join(w.dir, thumbnailDir, name)
				if err := thumbnail(w.fs, src, dst, w.thumbWidth); err != nil {
					w.logger.Warn("Thumbnail failed.", zap.String("screenshot", src), zap.Error(err))
					return nil
				}
				target.Thumb = thumbnailDir + "/" + name
				return nil
			})
		}
	}
	return g.Wait()
}

// relative expresses a screenshot path relative to the report directory so
// the report can be moved together with its screenshots.
func (w *Writer) relative(p string) string {
	absDir, err1 := filepath.Abs(w.dir)
	absP, err2 := filepath.Abs(p)
	if err1 != nil || err2 != nil {
		return filepath.ToSlash(p)
	}
	rel, err := filepath.Rel(absDir, absP)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

func baseName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "test_report"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\', ':':
			return '_'
		}
		return r
	}, name)
}

func icon(status string) string {
	switch status {
	case runner.StatusPassed:
		return "✅"
	case runner.StatusFailed:
		return "❌"
	case runner.StatusPartial:
		return "⚠️"
	case runner.StatusSkipped:
		return "⏭️"
	}
	return "❓"
}

// cell makes s safe inside a Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
