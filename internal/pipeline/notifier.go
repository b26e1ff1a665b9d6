package pipeline

import (
	"context"
	"fmt"

	"github.com/angelmondragon/clinicops-backend/internal/notify"
	"github.com/angelmondragon/clinicops-backend/pkg/config"
	"github.com/angelmondragon/clinicops-backend/pkg/logger"
	"github.com/angelmondragon/clinicops-backend/pkg/pubsub"
)

// NewNotifier builds the cache invalidation notifier selected by cfg. The
// returned closer releases any client it opened and is never nil.
func NewNotifier(ctx context.Context, cfg *config.Config, logg *logger.Logger) (notify.Notifier, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Cache.Kind() {
	case config.NotifierNone:
		return notify.NoopNotifier{}, noop, nil
	case config.NotifierHTTP:
		n, err := notify.NewHTTPNotifier(notify.HTTPNotifierParams{
			URL:     cfg.Cache.URL,
			Token:   cfg.Cache.Token,
			Timeout: cfg.Cache.Timeout,
		})
		if err != nil {
			return nil, noop, err
		}
		return n, noop, nil
	case config.NotifierPubSub:
		client, err := pubsub.NewClient(ctx, cfg.GCP, []string{cfg.Cache.Topic}, logg)
		if err != nil {
			return nil, noop, fmt.Errorf("pubsub notifier: %w", err)
		}
		n, err := notify.NewPubSubNotifier(client.Publisher(cfg.Cache.Topic))
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return n, client.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported cache notifier %q", cfg.Cache.Notifier)
	}
}
