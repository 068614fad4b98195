package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"load-triage/internal/parser"
)

// Keys accepted by Session.Press besides single printable characters
const (
	KeyEnter = kb.Enter
	KeyTab   = kb.Tab
)

// Session is one browser tab. Its methods run against the context the session was
// opened with, so they stop when the lookup's deadline passes.
type Session interface {
	Navigate(url string) error
	URL() (string, error)
	WaitVisible(selector string, timeout time.Duration) error
	Fill(selector, value string) error
	// FillFocused types value into the focused element when it matches selector
	FillFocused(selector, value string) (bool, error)
	ClickText(text string, timeout time.Duration) error
	Press(key string) error
	Sleep(d time.Duration) error
	// PageText returns the visible text of the current page
	PageText() (string, error)
}

type chromeSession struct {
	ctx context.Context
}

func openTab(ctx context.Context) (Session, context.CancelFunc) {
	tabCtx, cancel := chromedp.NewContext(ctx)
	return &chromeSession{ctx: tabCtx}, cancel
}

func (s *chromeSession) Navigate(url string) error {
	return chromedp.Run(s.ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (s *chromeSession) URL() (string, error) {
	var location string
	if err := chromedp.Run(s.ctx, chromedp.Location(&location)); err != nil {
		return "", err
	}
	return location, nil
}

func (s *chromeSession) WaitVisible(selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	return chromedp.Run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (s *chromeSession) Fill(selector, value string) error {
	return chromedp.Run(s.ctx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (s *chromeSession) FillFocused(selector, value string) (bool, error) {
	focused := selector + ":focus"

	var nodes []*cdp.Node
	if err := chromedp.Run(s.ctx, chromedp.Nodes(focused, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return false, err
	}
	if len(nodes) == 0 {
		return false, nil
	}

	if err := chromedp.Run(s.ctx, chromedp.SendKeys(nodes, value, chromedp.ByNodeID)); err != nil {
		return true, err
	}
	return true, nil
}

func (s *chromeSession) ClickText(text string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	xpath := fmt.Sprintf(`//*[normalize-space(text())=%s]`, xpathLiteral(text))
	return chromedp.Run(ctx, chromedp.Click(xpath, chromedp.BySearch, chromedp.NodeVisible))
}

func (s *chromeSession) Press(key string) error {
	return chromedp.Run(s.ctx, chromedp.KeyEvent(key))
}

func (s *chromeSession) Sleep(d time.Duration) error {
	return chromedp.Run(s.ctx, chromedp.Sleep(d))
}

func (s *chromeSession) PageText() (string, error) {
	var html string
	if err := chromedp.Run(s.ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return parser.HTMLToText(html)
}

// xpathLiteral quotes s for use in an XPath expression
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	parts := strings.Split(s, `"`)
	return `concat("` + strings.Join(parts, `", '"', "`) + `")`
}
