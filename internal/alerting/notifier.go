package alerting

import (
	"github.com/sirupsen/logrus"

	"github.com/gatelink/gogate/internal/domain"
)

// Notifier forwards fired alerts somewhere operators look. The log notifier
// is the default; HTTP/webhook notifiers plug in behind the same interface.
type Notifier interface {
	Notify(alert domain.Alert)
}

// LogNotifier writes alerts through the shared logger at a level matching
// the alert severity.
type LogNotifier struct {
	entry *logrus.Entry
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{entry: logrus.WithField("component", "alert_notifier")}
}

func (n *LogNotifier) Notify(alert domain.Alert) {
	fields := logrus.Fields{
		"rule":    alert.RuleName,
		"gateway": alert.GatewayName,
		"value":   alert.MetricValue,
	}
	switch alert.Level {
	case domain.LevelCritical:
		n.entry.WithFields(fields).Error(alert.Message)
	case domain.LevelWarning:
		n.entry.WithFields(fields).Warn(alert.Message)
	default:
		n.entry.WithFields(fields).Info(alert.Message)
	}
}
