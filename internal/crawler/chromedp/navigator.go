// Package chromedpnav drives the archive listing with headless Chrome.
package chromedpnav

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/crawler"
)

// Config controls the behavior of the headless navigator.
type Config struct {
	UserAgent         string
	TableSelector     string
	NextSelector      string
	NavigationTimeout time.Duration
}

// Navigator implements crawler.Navigator with a single chromedp tab.
type Navigator struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	tab         context.Context
	tabCancel   context.CancelFunc
}

var _ crawler.Navigator = (*Navigator)(nil)

// New creates a headless navigator backed by chromedp.
func New(cfg Config) (*Navigator, error) {
	if cfg.TableSelector == "" || cfg.NextSelector == "" {
		return nil, errors.New("table and next selectors are required")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tab, tabCancel := chromedp.NewContext(allocCtx)

	return &Navigator{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		tab:         tab,
		tabCancel:   tabCancel,
	}, nil
}

// Close shuts the tab and the browser.
func (n *Navigator) Close() {
	n.tabCancel()
	n.allocCancel()
}

// Open loads url in the tab.
func (n *Navigator) Open(ctx context.Context, url string) error {
	return n.run(ctx, "open",
		n.networkSetupAction(),
		chromedp.Navigate(url),
	)
}

// HTML waits for the listing table and returns the rendered document.
func (n *Navigator) HTML(ctx context.Context) (string, string, error) {
	var html, location string
	err := n.run(ctx, "render listing",
		chromedp.WaitVisible(n.cfg.TableSelector, chromedp.ByQuery),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", "", err
	}
	return html, location, nil
}

// NextState reports whether the "next page" control exists and is enabled.
func (n *Navigator) NextState(ctx context.Context) (crawler.NextState, error) {
	var nodes []*cdp.Node
	err := n.run(ctx, "find next control",
		chromedp.Nodes(n.cfg.NextSelector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)),
	)
	if err != nil {
		return crawler.NextMissing, err
	}
	if len(nodes) == 0 {
		return crawler.NextMissing, nil
	}
	return stateFromClass(nodes[0].AttributeValue("class")), nil
}

// Next clicks the anchor inside the "next page" control.
func (n *Navigator) Next(ctx context.Context) error {
	return n.run(ctx, "click next",
		chromedp.Click(n.cfg.NextSelector+" a", chromedp.ByQuery, chromedp.NodeVisible),
	)
}

// run executes actions on the tab, bounded by the navigation timeout and ctx.
func (n *Navigator) run(ctx context.Context, step string, actions ...chromedp.Action) error {
	taskCtx, cancel := context.WithTimeout(n.tab, n.cfg.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s canceled: %w", step, ctx.Err())
		}
		return fmt.Errorf("chromedp %s: %w", step, err)
	}
	return nil
}

func (n *Navigator) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if n.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(n.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func stateFromClass(class string) crawler.NextState {
	for _, c := range strings.Fields(class) {
		if strings.Contains(c, "disabled") {
			return crawler.NextDisabled
		}
	}
	return crawler.NextEnabled
}
