// Package browser drives a headless Chrome against the load portal
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

var (
	// ErrPoolClosed is returned when a session is requested from a closed pool
	ErrPoolClosed = errors.New("browser pool is closed")
	// ErrPoolExhausted is returned when every browser instance is in use
	ErrPoolExhausted = errors.New("browser pool exhausted")
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Options configures the Chrome instances a pool launches
type Options struct {
	Headless       bool
	UserDataDir    string
	ChromePath     string
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	DisableImages  bool

	// MaxBrowsers limits the number of concurrent browser instances
	MaxBrowsers int
	// IdleTimeout defines how long to keep idle browsers alive
	IdleTimeout time.Duration
	// MaxIdleBrowsers limits the number of idle browsers to keep
	MaxIdleBrowsers int

	Logger *slog.Logger
}

// DefaultOptions returns the options used when none are given
func DefaultOptions() *Options {
	return &Options{
		Headless:        true,
		UserAgent:       defaultUserAgent,
		ViewportWidth:   1920,
		ViewportHeight:  1080,
		DisableImages:   true,
		MaxBrowsers:     2,
		IdleTimeout:     5 * time.Minute,
		MaxIdleBrowsers: 1,
	}
}

// Stats reports pool occupancy
type Stats struct {
	Active int `json:"active"`
	Idle   int `json:"idle"`
	Total  int `json:"total"`
	Max    int `json:"max"`
}

type instance struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	lastUsed    time.Time
	inUse       bool
}

func (i *instance) close() {
	if i.cancel != nil {
		i.cancel()
	}
	if i.allocCancel != nil {
		i.allocCancel()
	}
}

// Pool hands out Chrome instances one session at a time
type Pool struct {
	options     *Options
	logger      *slog.Logger
	instances   []*instance
	mu          sync.RWMutex
	closed      bool
	cleanupDone chan struct{}

	launch      func(ctx context.Context) (*instance, error)
	openSession func(ctx context.Context) (Session, context.CancelFunc)
}

// NewPool creates a pool; browsers are launched lazily on first use
func NewPool(options *Options) *Pool {
	if options == nil {
		options = DefaultOptions()
	}
	if options.MaxBrowsers < 1 {
		options.MaxBrowsers = 1
	}
	if options.IdleTimeout <= 0 {
		options.IdleTimeout = 5 * time.Minute
	}
	if options.UserAgent == "" {
		options.UserAgent = defaultUserAgent
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// Chrome locks its profile directory, so a persistent profile allows one instance
	if options.UserDataDir != "" && options.MaxBrowsers > 1 {
		logger.Warn("Browser profile directory set, limiting pool to one instance",
			"user_data_dir", options.UserDataDir, "requested", options.MaxBrowsers)
		options.MaxBrowsers = 1
	}

	pool := &Pool{
		options:     options,
		logger:      logger,
		instances:   make([]*instance, 0, options.MaxBrowsers),
		cleanupDone: make(chan struct{}),
	}
	pool.launch = pool.launchChrome
	pool.openSession = openTab

	go pool.cleanupLoop()

	return pool
}

// WithSession runs fn with a session on a pooled browser. The browser goes back to
// the pool when fn returns, and the session context ends when ctx does.
func (p *Pool) WithSession(ctx context.Context, fn func(Session) error) error {
	inst, err := p.get(ctx)
	if err != nil {
		return err
	}
	defer p.put(inst)

	opCtx, cancel := context.WithCancel(inst.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		opCtx, cancelDeadline = context.WithDeadline(opCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	session, closeSession := p.openSession(opCtx)
	defer closeSession()

	return fn(session)
}

func (p *Pool) get(ctx context.Context) (*instance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	for _, inst := range p.instances {
		if !inst.inUse {
			inst.inUse = true
			inst.lastUsed = time.Now()
			return inst, nil
		}
	}

	if len(p.instances) < p.options.MaxBrowsers {
		inst, err := p.launch(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create browser instance: %w", err)
		}

		inst.inUse = true
		inst.lastUsed = time.Now()
		p.instances = append(p.instances, inst)
		p.logger.Debug("Launched browser instance", "total", len(p.instances))
		return inst, nil
	}

	return nil, fmt.Errorf("%w: %d instances in use", ErrPoolExhausted, len(p.instances))
}

func (p *Pool) put(inst *instance) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		inst.close()
		return
	}

	inst.inUse = false
	inst.lastUsed = time.Now()
}

// Close shuts down all browser instances in the pool
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	for _, inst := range p.instances {
		inst.close()
	}
	p.instances = nil

	close(p.cleanupDone)
	return nil
}

// Stats returns current pool statistics
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := Stats{Total: len(p.instances), Max: p.options.MaxBrowsers}
	for _, inst := range p.instances {
		if inst.inUse {
			stats.Active++
		} else {
			stats.Idle++
		}
	}
	return stats
}

func (p *Pool) launchChrome(ctx context.Context) (*instance, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), p.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run starts Chrome and binds its lifetime to the context it is given
	if err := chromedp.Run(browserCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}
	if err := ctx.Err(); err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}

	return &instance{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		lastUsed:    time.Now(),
	}, nil
}

func (p *Pool) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.UserAgent(p.options.UserAgent),
		chromedp.WindowSize(p.options.ViewportWidth, p.options.ViewportHeight),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
	}

	if p.options.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if p.options.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if p.options.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(p.options.UserDataDir))
	}
	if p.options.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(p.options.ChromePath))
	}

	return opts
}

func (p *Pool) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.cleanupIdle(time.Now())
		case <-p.cleanupDone:
			return
		}
	}
}

// cleanupIdle closes idle instances past the idle timeout or beyond the idle limit
func (p *Pool) cleanupIdle(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	idleCount := 0
	kept := make([]*instance, 0, len(p.instances))

	for _, inst := range p.instances {
		if inst.inUse {
			kept = append(kept, inst)
			continue
		}

		idleCount++
		if now.Sub(inst.lastUsed) < p.options.IdleTimeout && idleCount <= p.options.MaxIdleBrowsers {
			kept = append(kept, inst)
		} else {
			inst.close()
		}
	}

	if removed := len(p.instances) - len(kept); removed > 0 {
		p.logger.Debug("Closed idle browser instances", "removed", removed, "remaining", len(kept))
	}
	p.instances = kept
}
