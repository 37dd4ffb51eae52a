package notify

import (
	"errors"
	"fmt"
)

var (
	// ErrSkipped marks a notification a notifier chose not to send
	ErrSkipped = errors.New("notification skipped")

	ErrWebhookCooldown    = fmt.Errorf("%w: within cooldown period", ErrSkipped)
	ErrWebhookRateLimited = fmt.Errorf("%w: webhook rate limit reached", ErrSkipped)
	ErrWebhookStatus      = errors.New("webhook returned non-2xx status")
	ErrMissingURL         = errors.New("notifier URL is not configured")
)
