// Package browser drives a Chromium page with rod and exposes it as a
// dom.Document.
package browser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/v0xg/pagehelper/internal/config"
	"go.uber.org/zap"
)

// Options configures the launched browser.
type Options struct {
	Headless          bool
	Width             int
	Height            int
	ProfileDir        string // Chrome/Chromium profile directory for authenticated sessions
	Bin               string // browser binary, looked up when empty
	NavigationTimeout time.Duration
	SettleTimeout     time.Duration // upper bound for network idle after load
	ScreenshotDir     string
}

// OptionsFromConfig maps the browser and report sections of the config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Headless:          cfg.Browser.Headless,
		Width:             cfg.Browser.Width,
		Height:            cfg.Browser.Height,
		ProfileDir:        cfg.Browser.ProfileDir,
		Bin:               cfg.Browser.Bin,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		SettleTimeout:     cfg.Browser.SettleTimeout,
		ScreenshotDir:     filepath.Join(cfg.Report.Dir, "screenshots"),
	}
}

func (o *Options) defaults() {
	if o.Width <= 0 {
		o.Width = 1280
	}
	if o.Height <= 0 {
		o.Height = 720
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = 30 * time.Second
	}
	if o.SettleTimeout <= 0 {
		o.SettleTimeout = 5 * time.Second
	}
	if o.ScreenshotDir == "" {
		o.ScreenshotDir = "screenshots"
	}
}

// Browser wraps the rod browser and the single page under test.
type Browser struct {
	opts     Options
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	fs       afero.Fs
	logger   *zap.Logger
}

// Launch starts a local browser.
func Launch(ctx context.Context, opts Options, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.defaults()
	logger = logger.Named("browser")

	l := launcher.New().Context(ctx).Headless(opts.Headless)
	bin := opts.Bin
	if bin == "" {
		if path, ok := launcher.LookPath(); ok {
			bin = path
		}
	}
	if bin != "" {
		l = l.Bin(bin)
	}
	if opts.ProfileDir != "" {
		dir, err := homedir.Expand(opts.ProfileDir)
		if err != nil {
			return nil, fmt.Errorf("expand profile dir: %w", err)
		}
		l = l.UserDataDir(dir)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	logger.Info("Browser launched.", zap.String("bin", bin), zap.Bool("headless", opts.Headless))

	return &Browser{opts: opts, browser: b, launcher: l, fs: afero.NewOsFs(), logger: logger}, nil
}

// Open navigates the page under test to url, waits for it to settle and
// returns it as a Document. The previous page, if any, is closed.
func (b *Browser) Open(ctx context.Context, url string) (*Document, error) {
	if b.page != nil {
		_ = b.page.Close()
		b.page = nil
	}

	page, err := stealth.Page(b.browser)
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             b.opts.Width,
		Height:            b.opts.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, b.opts.NavigationTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(url); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	b.page = page
	b.settle(navCtx)

	b.logger.Info("Page opened.", zap.String("url", url))
	return &Document{page: page}, nil
}

// settle waits for the load event and then for network idle, bounded by the
// settle timeout so persistent connections cannot hang the run.
func (b *Browser) settle(ctx context.Context) {
	if err := b.page.Context(ctx).WaitLoad(); err != nil {
		b.logger.Warn("Wait for load failed.", zap.Error(err))
	}
	idleCtx, cancel := context.WithTimeout(ctx, b.opts.SettleTimeout)
	defer cancel()
	b.page.Context(idleCtx).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()
}

// Screenshot captures the viewport into the screenshot directory and returns
// the file path.
func (b *Browser) Screenshot(ctx context.Context, name string) (string, error) {
	if b.page == nil {
		return "", fmt.Errorf("no page open")
	}
	data, err := b.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", fmt.Errorf("capture screenshot: %w", err)
	}
	if err := b.fs.MkdirAll(b.opts.ScreenshotDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(b.opts.ScreenshotDir, screenshotName(name))
	if err := afero.WriteFile(b.fs, path, data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	b.logger.Debug("Screenshot saved.", zap.String("path", path))
	return path, nil
}

// HTML returns the current outer HTML of the page.
func (b *Browser) HTML(ctx context.Context) (string, error) {
	if b.page == nil {
		return "", fmt.Errorf("no page open")
	}
	return b.page.Context(ctx).HTML()
}

// Close cleans up browser resources.
func (b *Browser) Close() error {
	if b.page != nil {
		_ = b.page.Close()
	}
	err := b.browser.Close()
	if b.opts.ProfileDir == "" {
		// Removes the temporary user data dir.
		b.launcher.Cleanup()
	}
	return err
}

// screenshotName turns a case name into a file name.
func screenshotName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "page"
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	return name + ".png"
}
