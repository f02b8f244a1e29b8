package notify

import (
	"context"
	"errors"
	"regexp"

	"go.uber.org/zap"
)

// ErrBadDestination is returned when a recipient address is neither
// email-shaped nor phone-shaped. Checked before any external dispatch.
var ErrBadDestination = errors.New("destination is not an email address or phone number")

var (
	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneRe = regexp.MustCompile(`^\+?[0-9][0-9 \-]{6,18}$`)
)

// Notifier delivers short messages (transfer-ready notices, one-time
// codes) to a recipient out of band. Delivery transport is external to
// this service.
type Notifier interface {
	Notify(ctx context.Context, destination, message string) error
}

// ValidateDestination checks that a destination looks like an email
// address or a phone number.
func ValidateDestination(destination string) error {
	if emailRe.MatchString(destination) || phoneRe.MatchString(destination) {
		return nil
	}
	return ErrBadDestination
}

// LogNotifier records notifications in the service log instead of
// dispatching them. Stands in for the real email/SMS gateway.
type LogNotifier struct {
	log *zap.SugaredLogger
}

// NewLogNotifier builds a log-backed notifier.
func NewLogNotifier(log *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, destination, message string) error {
	if err := ValidateDestination(destination); err != nil {
		return err
	}
	n.log.Infow("notification dispatched", "destination", destination, "message", message)
	return nil
}
