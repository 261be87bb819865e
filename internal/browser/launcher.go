package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nafauto/internal/automation"
	"github.com/xkilldash9x/nafauto/internal/browser/stealth"
	"github.com/xkilldash9x/nafauto/internal/config"
)

// Launcher starts one stealth browser per batch.
type Launcher struct {
	cfg     config.BrowserConfig
	persona stealth.Persona
	logger  *zap.Logger
}

// NewLauncher creates a Launcher for the given browser settings.
func NewLauncher(cfg config.BrowserConfig, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{
		cfg:     cfg,
		persona: stealth.PersonaFromConfig(cfg),
		logger:  logger.Named("browser"),
	}
}

// Acquire launches a browser, applies the persona and opens formURL.
// When the browser started but the page did not load, the session is
// returned with the error so the caller can close it.
func (l *Launcher) Acquire(ctx context.Context, formURL string) (automation.Session, error) {
	id := uuid.NewString()
	log := l.logger.With(zap.String("session_id", id))
	log.Info("Launching browser.", zap.Bool("headless", l.cfg.Headless))

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(l.cfg, l.persona)...)
	sugar := log.Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Errorf),
	)

	s := newSession(id, tabCtx, tabCancel, allocCancel, l.cfg.DefaultTimeout, log)

	// The first Run starts the browser and must not use a deadline-bound
	// context, or the tab dies with it.
	if err := chromedp.Run(tabCtx, stealth.Apply(l.persona, log)); err != nil {
		return s, initError("launching browser", err)
	}

	navCtx, cancel := context.WithTimeout(tabCtx, l.cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(navCtx,
		chromedp.Navigate(formURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return s, initError(fmt.Sprintf("loading %s", formURL), err)
	}

	log.Info("Form loaded.", zap.String("url", formURL))
	return s, nil
}

func initError(step string, err error) error {
	return &automation.StepError{Kind: automation.KindSessionInit, Step: step, Err: err}
}

// allocatorOptions builds the launch flags for a browser that does not
// announce itself as automated.
func allocatorOptions(cfg config.BrowserConfig, p stealth.Persona) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for _, f := range launchFlags(cfg, p) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if p.Screen.Width > 0 && p.Screen.Height > 0 {
		opts = append(opts, chromedp.WindowSize(int(p.Screen.Width), int(p.Screen.Height)))
	}
	return opts
}

type launchFlag struct {
	name  string
	value interface{}
}

func launchFlags(cfg config.BrowserConfig, p stealth.Persona) []launchFlag {
	flags := []launchFlag{
		// A false value removes the flag from the chromedp defaults.
		{"enable-automation", false},
		{"headless", cfg.Headless},
		{"disable-blink-features", "AutomationControlled"},
		{"disable-extensions", true},
		{"disable-gpu", cfg.Headless},
		{"ignore-certificate-errors", cfg.IgnoreTLSErrors},
	}
	if p.UserAgent != "" {
		flags = append(flags, launchFlag{"user-agent", p.UserAgent})
	}
	if len(p.Languages) > 0 {
		flags = append(flags, launchFlag{"lang", p.Languages[0]})
	}

	if runtime.GOOS == "linux" {
		flags = append(flags,
			launchFlag{"no-sandbox", true},
			launchFlag{"disable-setuid-sandbox", true},
			launchFlag{"disable-dev-shm-usage", true},
		)
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags = append(flags, launchFlag{name, parts[1]})
		} else {
			flags = append(flags, launchFlag{name, true})
		}
	}
	return flags
}
