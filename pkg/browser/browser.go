package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Options configures the launched browser
type Options struct {
	Bin            string // Chrome binary, empty for the launcher default
	Headless       bool
	BlockResources bool
}

// DefaultOptions returns headless options with resource blocking on. CHROME_BIN
// overrides the binary, as in container images.
func DefaultOptions() Options {
	return Options{
		Bin:            os.Getenv("CHROME_BIN"),
		Headless:       true,
		BlockResources: true,
	}
}

// Browser is a launched Chrome process and its DevTools connection
type Browser struct {
	opts     Options
	launcher *launcher.Launcher
	rod      *rod.Browser
}

// Launch starts Chrome and connects to it
func Launch(ctx context.Context, opts Options) (*Browser, error) {
	l := launcher.New().Context(ctx)

	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}
	l = l.Headless(opts.Headless)

	// Container friendly flags
	l = l.Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("window-size", "1280,800").
		Set("disable-extensions").
		Set("disable-default-apps").
		Set("mute-audio")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	slog.Debug("browser launched", "headless", opts.Headless, "bin", opts.Bin)
	return &Browser{opts: opts, launcher: l, rod: b}, nil
}

// NewPage opens a blank tab. With BlockResources set the tab aborts image,
// font, stylesheet, media and other sub-resource requests.
func (b *Browser) NewPage(ctx context.Context) (*RodPage, error) {
	page, err := b.rod.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	p := &RodPage{page: page}
	if b.opts.BlockResources {
		router, err := blockResources(page)
		if err != nil {
			_ = page.Close()
			return nil, err
		}
		p.router = router
	}
	return p, nil
}

// Close shuts the browser down and removes its profile directory
func (b *Browser) Close() error {
	err := b.rod.Close()
	b.launcher.Kill()
	b.launcher.Cleanup()
	if err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}
