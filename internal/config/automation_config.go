// File: internal/config/automation_config.go
// This file defines the settings of the form submission pipeline: where each
// inquiry field lives on the external form, how long each step may wait, and
// the pacing bounds used to keep the interaction looking hand-driven.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// AutomationConfig configures the form submission pipeline.
type AutomationConfig struct {
	DefaultFormURL string         `mapstructure:"default_form_url" yaml:"default_form_url"`
	FieldMap       FieldMapConfig `mapstructure:"field_map" yaml:"field_map"`
	Timeouts       TimeoutConfig  `mapstructure:"timeouts" yaml:"timeouts"`
	Jitter         JitterConfig   `mapstructure:"jitter" yaml:"jitter"`
	// TolerateAckTimeout treats a missing post-submit navigation as a success.
	TolerateAckTimeout bool   `mapstructure:"tolerate_ack_timeout" yaml:"tolerate_ack_timeout"`
	DetailPlaceholder  string `mapstructure:"detail_placeholder" yaml:"detail_placeholder"`
	// MaxSubmissionsPerMinute caps submit clicks across a batch. Zero disables the cap.
	MaxSubmissionsPerMinute float64 `mapstructure:"max_submissions_per_minute" yaml:"max_submissions_per_minute"`
}

// FieldMapConfig holds the CSS selectors of the external form.
// Viper lower-cases map keys, so CategoryOptions labels are matched case-insensitively.
type FieldMapConfig struct {
	Name             string            `mapstructure:"name" yaml:"name"`
	IDNumber         string            `mapstructure:"id_number" yaml:"id_number"`
	Detail           string            `mapstructure:"detail" yaml:"detail"`
	Submit           string            `mapstructure:"submit" yaml:"submit"`
	SubmitAnother    string            `mapstructure:"submit_another" yaml:"submit_another"`
	CategoryOptions  map[string]string `mapstructure:"category_options" yaml:"category_options"`
	CategoryTemplate string            `mapstructure:"category_template" yaml:"category_template"`
	DefaultCategory  string            `mapstructure:"default_category" yaml:"default_category"`
}

// TimeoutConfig bounds each wait of the submission cycle.
type TimeoutConfig struct {
	Ready    time.Duration `mapstructure:"ready" yaml:"ready"`
	Category time.Duration `mapstructure:"category" yaml:"category"`
	Submit   time.Duration `mapstructure:"submit" yaml:"submit"`
	Ack      time.Duration `mapstructure:"ack" yaml:"ack"`
	Reset    time.Duration `mapstructure:"reset" yaml:"reset"`
}

// RangeConfig is an inclusive [MinMs, MaxMs] delay range in milliseconds.
type RangeConfig struct {
	MinMs int `mapstructure:"min_ms" yaml:"min_ms"`
	MaxMs int `mapstructure:"max_ms" yaml:"max_ms"`
}

// JitterConfig holds the randomized delay bounds per interaction class.
type JitterConfig struct {
	Keystroke   RangeConfig `mapstructure:"keystroke" yaml:"keystroke"`
	InterField  RangeConfig `mapstructure:"inter_field" yaml:"inter_field"`
	Click       RangeConfig `mapstructure:"click" yaml:"click"`
	SubmitClick RangeConfig `mapstructure:"submit_click" yaml:"submit_click"`
	PreSubmit   RangeConfig `mapstructure:"pre_submit" yaml:"pre_submit"`
	InterRecord RangeConfig `mapstructure:"inter_record" yaml:"inter_record"`
}

const (
	defaultNameSelector          = `#mG61Hd > div.RH5hzf.RLS9Fe > div > div.o3Dpx > div:nth-child(1) > div > div > div.AgroKb > div > div.aCsJod.oJeWuf > div > div.Xb9hP > input:nth-child(1)`
	defaultIDNumberSelector      = `#mG61Hd > div.RH5hzf.RLS9Fe > div > div.o3Dpx > div:nth-child(2) > div > div > div.AgroKb > div > div.aCsJod.oJeWuf > div > div.Xb9hP > input`
	defaultCategorySelector      = `#i22 > div.vd3tt > div`
	defaultDetailSelector        = `#mG61Hd > div.RH5hzf.RLS9Fe > div > div.o3Dpx > div:nth-child(4) > div > div > div.AgroKb > div > div.RpC4Ne.oJeWuf > div.Pc9Gce.Wic03c > textarea`
	defaultSubmitSelector        = `#mG61Hd > div.RH5hzf.RLS9Fe > div > div.ThHDze > div.DE3NNc.CekdCb > div.lRwqcd > div > span`
	defaultSubmitAnotherSelector = `body > div.Uc2NEf > div:nth-child(2) > div.RH5hzf.RLS9Fe > div > div.c2gzEf > a`
)

// setAutomationDefaults registers the defaults for the current layout of the NAF form.
func setAutomationDefaults(v *viper.Viper) {
	v.SetDefault("automation.field_map.name", defaultNameSelector)
	v.SetDefault("automation.field_map.id_number", defaultIDNumberSelector)
	v.SetDefault("automation.field_map.detail", defaultDetailSelector)
	v.SetDefault("automation.field_map.submit", defaultSubmitSelector)
	v.SetDefault("automation.field_map.submit_another", defaultSubmitAnotherSelector)
	v.SetDefault("automation.field_map.category_options", map[string]string{
		"imposto de renda": defaultCategorySelector,
	})
	v.SetDefault("automation.field_map.category_template", `div[role="radio"][data-value="%s"]`)
	v.SetDefault("automation.field_map.default_category", defaultCategorySelector)

	v.SetDefault("automation.timeouts.ready", "15s")
	v.SetDefault("automation.timeouts.category", "5s")
	v.SetDefault("automation.timeouts.submit", "8s")
	v.SetDefault("automation.timeouts.ack", "15s")
	v.SetDefault("automation.timeouts.reset", "10s")

	v.SetDefault("automation.jitter.keystroke.min_ms", 50)
	v.SetDefault("automation.jitter.keystroke.max_ms", 100)
	v.SetDefault("automation.jitter.inter_field.min_ms", 100)
	v.SetDefault("automation.jitter.inter_field.max_ms", 300)
	v.SetDefault("automation.jitter.click.min_ms", 50)
	v.SetDefault("automation.jitter.click.max_ms", 100)
	v.SetDefault("automation.jitter.submit_click.min_ms", 50)
	v.SetDefault("automation.jitter.submit_click.max_ms", 150)
	v.SetDefault("automation.jitter.pre_submit.min_ms", 200)
	v.SetDefault("automation.jitter.pre_submit.max_ms", 500)
	v.SetDefault("automation.jitter.inter_record.min_ms", 500)
	v.SetDefault("automation.jitter.inter_record.max_ms", 1500)

	v.SetDefault("automation.tolerate_ack_timeout", true)
	v.SetDefault("automation.detail_placeholder", "Sem descrição.")
	v.SetDefault("automation.max_submissions_per_minute", 0)
}

// Validate checks the automation settings.
func (a *AutomationConfig) Validate() error {
	if err := a.FieldMap.Validate(); err != nil {
		return fmt.Errorf("field_map: %w", err)
	}
	timeouts := map[string]time.Duration{
		"ready":    a.Timeouts.Ready,
		"category": a.Timeouts.Category,
		"submit":   a.Timeouts.Submit,
		"ack":      a.Timeouts.Ack,
		"reset":    a.Timeouts.Reset,
	}
	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("timeouts.%s must be a positive duration", name)
		}
	}
	if a.MaxSubmissionsPerMinute < 0 {
		return fmt.Errorf("max_submissions_per_minute must not be negative")
	}
	return a.Jitter.Validate()
}

// Validate checks that every required selector is present.
func (f *FieldMapConfig) Validate() error {
	required := map[string]string{
		"name":           f.Name,
		"id_number":      f.IDNumber,
		"detail":         f.Detail,
		"submit":         f.Submit,
		"submit_another": f.SubmitAnother,
	}
	for key, sel := range required {
		if sel == "" {
			return fmt.Errorf("%s selector is required", key)
		}
	}
	return nil
}

// Validate checks that every range is well formed.
func (j *JitterConfig) Validate() error {
	ranges := map[string]RangeConfig{
		"keystroke":    j.Keystroke,
		"inter_field":  j.InterField,
		"click":        j.Click,
		"submit_click": j.SubmitClick,
		"pre_submit":   j.PreSubmit,
		"inter_record": j.InterRecord,
	}
	for name, r := range ranges {
		if r.MinMs < 0 || r.MaxMs < r.MinMs {
			return fmt.Errorf("jitter.%s must satisfy 0 <= min_ms <= max_ms", name)
		}
	}
	return nil
}
