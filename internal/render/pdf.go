// Package render turns a finalized challan into a printable artifact: an HTML
// template with an embedded QR code, printed to PDF through headless Chrome.
// Rendering is read-only with respect to the invoice record.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const defaultRenderTimeout = 30 * time.Second

// A4 dimensions in inches, Chrome's print unit.
const (
	a4WidthInches  = 8.27
	a4HeightInches = 11.69
)

// ErrRenderTimeout reports that PDF generation exceeded its deadline.
var ErrRenderTimeout = errors.New("pdf rendering timed out")

// PDFRenderer converts HTML content into PDF bytes.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// ChromedpConfig contains configuration for the chromedp renderer.
type ChromedpConfig struct {
	// Timeout bounds a single render; defaults to 30s.
	Timeout time.Duration
	// RemoteURL points at a remote Chrome instance. Empty launches a local one.
	RemoteURL string
	// NoSandbox runs Chrome without sandbox (required for Docker/root).
	NoSandbox bool
	Logger    *zap.Logger
}

// ChromedpRenderer renders HTML to PDF using the Chrome DevTools Protocol.
type ChromedpRenderer struct {
	config      ChromedpConfig
	logger      *zap.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewChromedpRenderer creates a new chromedp-based PDF renderer.
func NewChromedpRenderer(config ChromedpConfig) *ChromedpRenderer {
	if config.Timeout == 0 {
		config.Timeout = defaultRenderTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &ChromedpRenderer{config: config, logger: logger}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true), // Important for Docker
		chromedp.Flag("font-render-hinting", "none"),
	)
	if config.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}

	if config.RemoteURL != "" {
		r.allocCtx, r.allocCancel = chromedp.NewRemoteAllocator(context.Background(), config.RemoteURL)
	} else {
		r.allocCtx, r.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	return r
}

// Close releases the Chrome allocator.
func (r *ChromedpRenderer) Close() {
	if r.allocCancel != nil {
		r.allocCancel()
	}
}

// RenderHTML converts HTML content to PDF bytes.
func (r *ChromedpRenderer) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	if html == "" {
		return nil, errors.New("html content is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	browserCtx, browserCancel := chromedp.NewContext(r.allocCtx)
	defer browserCancel()

	runCtx, cancel := context.WithTimeout(browserCtx, r.config.Timeout)
	defer cancel()

	started := time.Now()
	var pdfData []byte

	err := chromedp.Run(runCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(a4WidthInches).
				WithPaperHeight(a4HeightInches).
				Do(ctx)
			if err != nil {
				return err
			}
			pdfData = data
			return nil
		}),
	)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %v", ErrRenderTimeout, r.config.Timeout)
		}
		r.logger.Error("chromedp rendering failed", zap.Error(err))
		return nil, fmt.Errorf("chromedp execution failed: %w", err)
	}
	if len(pdfData) == 0 {
		return nil, errors.New("generated PDF is empty")
	}

	r.logger.Info("challan PDF rendered",
		zap.Int("bytes", len(pdfData)),
		zap.Duration("duration", time.Since(started)))

	return pdfData, nil
}
