package download

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"tubefetch/internal/config"
	"tubefetch/internal/extract"
	"tubefetch/internal/media"
)

// Strategy is one extractor configuration tried in priority order.
type Strategy struct {
	Name          string
	PlayerClients []string
	PlayerSkip    []string
	Timeout       time.Duration
	Attempts      int
}

// StrategiesFromConfig converts configured strategy tables.
func StrategiesFromConfig(list []config.StrategyConfig) []Strategy {
	out := make([]Strategy, 0, len(list))
	for _, s := range list {
		out = append(out, Strategy{
			Name:          s.Name,
			PlayerClients: s.PlayerClients,
			PlayerSkip:    s.PlayerSkip,
			Timeout:       s.Timeout(),
			Attempts:      s.Attempts,
		})
	}
	return out
}

func (s Strategy) apply(opts extract.Options) extract.Options {
	opts.PlayerClients = s.PlayerClients
	opts.PlayerSkip = s.PlayerSkip
	opts.SocketTimeout = s.Timeout
	return opts
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// walk tries each strategy in order until one succeeds. Within a strategy
// attempts back off exponentially; an authentication challenge ends the
// strategy early since the same client variant will be challenged again.
func (o *Orchestrator) walk(ctx context.Context, mode string, strategies []Strategy, try func(context.Context, Strategy) error) error {
	start := time.Now()
	defer func() { o.metrics.RecordFetch(mode, time.Since(start).Seconds()) }()

	if len(strategies) == 0 {
		return media.Errorf(media.KindExtractionFailed, "no %s strategies configured", mode)
	}

	var lastErr error
	for _, s := range strategies {
		attempts := s.Attempts
		if attempts < 1 {
			attempts = 1
		}
		b := backoff.WithContext(backoff.WithMaxRetries(o.newBackOff(), uint64(attempts-1)), ctx)

		attempt := 0
		op := func() error {
			attempt++
			actx, cancel := context.WithTimeout(ctx, s.Timeout)
			defer cancel()

			err := classify(try(actx, s), s.Timeout)
			if err == nil {
				o.metrics.RecordAttempt(mode, s.Name, "success")
				return nil
			}
			o.metrics.RecordAttempt(mode, s.Name, media.KindOf(err).String())
			if ctx.Err() != nil || media.KindOf(err) == media.KindAuthenticationRequired {
				return backoff.Permanent(err)
			}
			return err
		}
		notify := func(err error, wait time.Duration) {
			o.log.Warn().Err(err).
				Str("mode", mode).
				Str("strategy", s.Name).
				Int("attempt", attempt).
				Dur("retry_in", wait).
				Msg("extractor attempt failed")
		}

		err := backoff.RetryNotify(op, b, notify)
		if err == nil {
			if attempt > 1 || lastErr != nil {
				o.log.Info().Str("mode", mode).Str("strategy", s.Name).Int("attempt", attempt).Msg("extractor recovered")
			}
			return nil
		}
		lastErr = classify(err, s.Timeout)
		if ctx.Err() != nil {
			return lastErr
		}
		o.log.Warn().Err(lastErr).Str("mode", mode).Str("strategy", s.Name).Msg("strategy exhausted")
	}
	return lastErr
}

var authMarkers = []string{
	"sign in to confirm",
	"not a bot",
	"confirm you're not a bot",
	"use --cookies",
	"cookies-from-browser",
	"login required",
}

// classify maps raw extractor failures onto stable error kinds. Errors that
// already carry a kind pass through unchanged.
func classify(err error, timeout time.Duration) error {
	if err == nil {
		return nil
	}
	if media.KindOf(err) != media.KindUnknown {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return media.Wrap(media.KindExtractionFailed, err, fmt.Sprintf("extraction timed out after %s", timeout))
	}
	if errors.Is(err, context.Canceled) {
		return media.Wrap(media.KindExtractionFailed, err, "extraction cancelled")
	}

	msg := err.Error()
	var upstream *extract.UpstreamError
	if errors.As(err, &upstream) {
		msg = upstream.Message
	}

	lower := strings.ToLower(msg)
	for _, marker := range authMarkers {
		if strings.Contains(lower, marker) {
			return media.Wrap(media.KindAuthenticationRequired, err,
				"YouTube is asking for sign-in to confirm this is not a bot. "+
					"Export a cookies.txt from a logged-in browser and set YT_COOKIES_FILE (or --cookies). "+
					"Upstream said: "+msg)
		}
	}
	return media.Wrap(media.KindExtractionFailed, err, "extraction failed: "+msg)
}
