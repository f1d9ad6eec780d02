// Package browser opens workspace windows in a locally controlled Chrome
// instance via the DevTools protocol.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/chromedp/chromedp"
	"pkt.systems/pslog"
	"pkt.systems/webmux/schema"
)

// Opener drives a shared headless-capable browser. Each OpenWindow call
// creates a fresh tab pointed at the workspace URL for the given window
// partition. The allocator is created lazily on first use so constructing
// an Opener never launches a browser.
type Opener struct {
	baseURL  string
	headless bool
	log      pslog.Logger

	mu       sync.Mutex
	allocCtx context.Context
	cancel   context.CancelFunc
}

// NewOpener constructs a browser opener serving windows off the given
// workspace base URL.
func NewOpener(baseURL string, headless bool, logger pslog.Logger) *Opener {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Opener{baseURL: baseURL, headless: headless, log: logger}
}

// OpenWindow opens a new browser window for the given window partition,
// focused on the given terminal.
func (o *Opener) OpenWindow(ctx context.Context, windowID schema.WindowID, sessionID schema.SessionID) error {
	alloc, err := o.allocator()
	if err != nil {
		return err
	}
	target := fmt.Sprintf("%s/window/%s?focus=%s",
		o.baseURL, url.PathEscape(string(windowID)), url.QueryEscape(string(sessionID)))
	tabCtx, _ := chromedp.NewContext(alloc)
	if err := chromedp.Run(tabCtx, chromedp.Navigate(target)); err != nil {
		o.log.Warn("browser window open failed", "window", windowID, "err", err)
		return fmt.Errorf("open window %s: %w", windowID, err)
	}
	o.log.Info("browser window opened", "window", windowID, "session", sessionID)
	return nil
}

// Close shuts the shared browser down.
func (o *Opener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
		o.allocCtx = nil
	}
	return nil
}

func (o *Opener) allocator() (context.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.allocCtx != nil {
		return o.allocCtx, nil
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", o.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	o.allocCtx, o.cancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return o.allocCtx, nil
}
