// internal/browser/stealth/stealth.go
package stealth

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nafauto/internal/config"
)

//go:embed evasions.js
var evasionsScript string

// ScreenProperties defines the emulated viewport.
type ScreenProperties struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// Persona defines the browser characteristics to emulate.
type Persona struct {
	UserAgent   string           `json:"userAgent"`
	Platform    string           `json:"platform"`
	Languages   []string         `json:"languages"`
	PluginCount int              `json:"pluginCount"`
	Timezone    string           `json:"timezone,omitempty"`
	Locale      string           `json:"locale,omitempty"`
	Screen      ScreenProperties `json:"screen"`
}

// DefaultPersona is a Brazilian Portuguese desktop Chrome on Windows.
var DefaultPersona = Persona{
	UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	Platform:    "Win32",
	Languages:   []string{"pt-BR", "pt", "en-US", "en"},
	PluginCount: 5,
	Timezone:    "America/Fortaleza",
	Locale:      "pt-BR",
	Screen:      ScreenProperties{Width: 1920, Height: 1080},
}

// PersonaFromConfig builds a persona from browser settings, falling back to
// DefaultPersona for anything left empty.
func PersonaFromConfig(cfg config.BrowserConfig) Persona {
	p := DefaultPersona
	if cfg.UserAgent != "" {
		p.UserAgent = cfg.UserAgent
	}
	if cfg.Platform != "" {
		p.Platform = cfg.Platform
	}
	if len(cfg.Languages) > 0 {
		p.Languages = append([]string(nil), cfg.Languages...)
	}
	if cfg.PluginCount > 0 {
		p.PluginCount = cfg.PluginCount
	}
	if cfg.Timezone != "" {
		p.Timezone = cfg.Timezone
	}
	if cfg.Locale != "" {
		p.Locale = cfg.Locale
	}
	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		p.Screen = ScreenProperties{Width: int64(w), Height: int64(h)}
	}
	return p
}

// AcceptLanguage renders the persona languages as an Accept-Language header value.
func (p Persona) AcceptLanguage() string {
	if len(p.Languages) == 0 {
		return ""
	}
	header := p.Languages[0]
	for i := 1; i < len(p.Languages); i++ {
		q := 1.0 - float64(i)*0.1
		if q < 0.5 {
			q = 0.5
		}
		header += fmt.Sprintf(",%s;q=%.1f", p.Languages[i], q)
	}
	return header
}

// Script returns the evasion script with the persona bound to it.
func (p Persona) Script() (string, error) {
	personaJSON, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("stealth: failed to marshal persona: %w", err)
	}
	return fmt.Sprintf("const NAF_PERSONA = %s;\n%s", personaJSON, evasionsScript), nil
}

// Apply constructs the CDP actions that make the headless tab look like an
// ordinary desktop browser. It must run before the first navigation.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	l := logger.Named("stealth")
	l.Debug("Applying browser stealth persona",
		zap.String("userAgent", p.UserAgent),
		zap.Strings("languages", p.Languages),
	)

	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(p.UserAgent).
			WithPlatform(p.Platform).
			WithAcceptLanguage(p.AcceptLanguage()),
		chromedp.ActionFunc(func(ctx context.Context) error {
			script, err := p.Script()
			if err != nil {
				return err
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				l.Error("Failed to register evasion script with CDP", zap.Error(err))
				return fmt.Errorf("stealth: failed to add script on new document: %w", err)
			}
			return nil
		}),
	}

	if h := p.AcceptLanguage(); h != "" {
		tasks = append(tasks, network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": h}))
	}
	if p.Screen.Width > 0 && p.Screen.Height > 0 {
		tasks = append(tasks, emulation.SetDeviceMetricsOverride(p.Screen.Width, p.Screen.Height, 1.0, false))
	}
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	return tasks
}
