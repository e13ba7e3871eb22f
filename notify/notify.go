// Package notify delivers user-facing status notifications emitted
// during purchase processing.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Severity classifies a notification
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Notification is one user-facing status message
type Notification struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	TokenID   uint64    `json:"tokenId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// New builds a notification with a fresh ID and timestamp
func New(severity Severity, message string, tokenID uint64) Notification {
	return Notification{
		ID:        uuid.New().String(),
		Severity:  severity,
		Message:   message,
		TokenID:   tokenID,
		CreatedAt: time.Now().UTC(),
	}
}

// Notifier delivers notifications. Implementations must not block on
// slow consumers.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the service log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the notification at a level matching its severity
func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	fields := []zap.Field{
		zap.String("notification_id", n.ID),
		zap.String("severity", string(n.Severity)),
		zap.Uint64("token_id", n.TokenID),
	}
	switch n.Severity {
	case SeverityError:
		l.logger.Error(n.Message, fields...)
	default:
		l.logger.Info(n.Message, fields...)
	}
	return nil
}

// MultiNotifier fans a notification out to several notifiers. Delivery
// failures are logged and do not stop the fan-out.
type MultiNotifier struct {
	mu        sync.RWMutex
	notifiers []Notifier
	logger    *zap.Logger
}

// NewMultiNotifier creates a fan-out notifier
func NewMultiNotifier(logger *zap.Logger, notifiers ...Notifier) *MultiNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiNotifier{notifiers: notifiers, logger: logger}
}

// Add registers another delivery sink
func (m *MultiNotifier) Add(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

// Notify delivers to every registered notifier
func (m *MultiNotifier) Notify(ctx context.Context, n Notification) error {
	m.mu.RLock()
	notifiers := m.notifiers
	m.mu.RUnlock()

	for _, notifier := range notifiers {
		if err := notifier.Notify(ctx, n); err != nil {
			m.logger.Warn("notification delivery failed",
				zap.String("notification_id", n.ID),
				zap.Error(err))
		}
	}
	return nil
}
