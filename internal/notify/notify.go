// Package notify delivers scan results to external channels.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"nscan/internal/analysis"
	"nscan/internal/config"
	"nscan/pkg/utils"
)

// Notifier sends notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	SendScan(ctx context.Context, summary ScanSummary) error
	SendError(ctx context.Context, err error, context string) error
}

// NotificationChannel defines the interface for a notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationPatterns NotificationType = "patterns"
	NotificationError    NotificationType = "error"
	NotificationInfo     NotificationType = "info"
)

// NotificationLevel represents the notification level filter.
type NotificationLevel string

const (
	LevelAll          NotificationLevel = "all"
	LevelPatternsOnly NotificationLevel = "patterns_only"
	LevelErrorsOnly   NotificationLevel = "errors_only"
)

// ScanSummary is the outcome of one scan run.
type ScanSummary struct {
	Symbols  int
	Skipped  int
	Patterns []analysis.Pattern
	Duration time.Duration
}

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	channels []NotificationChannel
	level    NotificationLevel
	mu       sync.RWMutex
}

// New returns the notifier for cfg. With notifications switched off every message is
// discarded.
func New(cfg config.NotifyConfig) Notifier {
	if !cfg.Enabled {
		return NewNoOpNotifier()
	}
	return NewMultiNotifier(cfg)
}

// NewMultiNotifier creates a MultiNotifier with the channels enabled in cfg.
func NewMultiNotifier(cfg config.NotifyConfig) *MultiNotifier {
	mn := &MultiNotifier{
		level: NotificationLevel(cfg.Level),
	}
	if mn.level == "" {
		mn.level = LevelAll
	}
	if cfg.Enabled && cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookNotifier(cfg.Webhook))
	}
	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

func (mn *MultiNotifier) shouldSend(notifType NotificationType) bool {
	switch mn.level {
	case LevelPatternsOnly:
		return notifType == NotificationPatterns
	case LevelErrorsOnly:
		return notifType == NotificationError
	default:
		return true
	}
}

// Send sends a notification to all enabled channels.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SendScan reports the patterns of a scan run. A run without patterns is sent as
// info so that patterns_only subscribers only hear about hits.
func (mn *MultiNotifier) SendScan(ctx context.Context, s ScanSummary) error {
	n := Notification{
		Type:  NotificationInfo,
		Title: "Scan finished: no patterns",
		Data: map[string]interface{}{
			"symbols":  s.Symbols,
			"skipped":  s.Skipped,
			"patterns": len(s.Patterns),
			"duration": s.Duration.Round(time.Millisecond).String(),
		},
	}
	if len(s.Patterns) > 0 {
		n.Type = NotificationPatterns
		n.Title = fmt.Sprintf("Scan finished: %d patterns", len(s.Patterns))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d symbols scanned, %d skipped\n", s.Symbols, s.Skipped)
	for _, p := range s.Patterns {
		fmt.Fprintf(&b, "%s %s %s entry %s stop %s target %s R/R %s\n",
			p.ConfirmDate.Format("2006-01-02"), p.Symbol, p.Type.Classification(),
			utils.FormatPrice(p.Entry), utils.FormatPrice(p.Stop), utils.FormatPrice(p.Target),
			utils.FormatRatio(p.RiskReward))
	}
	n.Message = strings.TrimRight(b.String(), "\n")

	return mn.Send(ctx, n)
}

// SendError sends an error notification.
func (mn *MultiNotifier) SendError(ctx context.Context, err error, errContext string) error {
	return mn.Send(ctx, Notification{
		Type:    NotificationError,
		Title:   "Scan error",
		Message: fmt.Sprintf("%s: %v", errContext, err),
	})
}

// WebhookNotifier sends notifications via HTTP webhook.
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *http.Client
}

// NewWebhookNotifier creates a new WebhookNotifier.
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the name of the notifier.
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// IsEnabled returns whether the notifier is enabled.
func (w *WebhookNotifier) IsEnabled() bool {
	return w.enabled
}

// Send posts the notification as JSON.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	if !w.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"data":      n.Data,
		"timestamp": n.Timestamp.Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "nscan/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// NoOpNotifier discards every notification.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

func (n *NoOpNotifier) Send(ctx context.Context, notif Notification) error { return nil }

func (n *NoOpNotifier) SendScan(ctx context.Context, summary ScanSummary) error { return nil }

func (n *NoOpNotifier) SendError(ctx context.Context, err error, context string) error { return nil }

var (
	_ Notifier = (*MultiNotifier)(nil)
	_ Notifier = (*NoOpNotifier)(nil)
)
