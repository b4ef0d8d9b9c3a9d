// Package classifier judges comment text with an OpenAI compatible chat
// model. Replies are validated against a strict schema; a reply that does
// not fit falls back to a low-confidence keyword heuristic, and an AI
// service that stays unreachable yields an unresolved classification.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"commentguard/internal/logging"
	"commentguard/internal/retry"
	"commentguard/moderation"
)

// ErrNotConfigured is recorded when no AI backend was configured.
var ErrNotConfigured = errors.New("classifier: AI service not configured")

// Config configures a Classifier.
type Config struct {
	// Retry bounds attempts against transient AI failures.
	Retry  retry.Config
	Logger *slog.Logger
}

// DefaultConfig allows three attempts per comment.
func DefaultConfig() Config {
	return Config{Retry: retry.DefaultConfig()}
}

// Classifier implements moderation.Classifier.
type Classifier struct {
	completer Completer
	heuristic *Heuristic
	retry     retry.Config
	logger    *slog.Logger
}

// New creates a Classifier. A nil completer leaves every comment
// unresolved.
func New(completer Completer, cfg Config) *Classifier {
	logger := logging.Or(cfg.Logger).With("component", "classifier")
	rc := cfg.Retry
	if rc.OnRetry == nil {
		rc.OnRetry = func(attempt int, err error, wait time.Duration) {
			logger.Debug("retrying classification", "attempt", attempt, "wait", wait, "error", err)
		}
	}
	return &Classifier{
		completer: completer,
		heuristic: NewHeuristic(),
		retry:     rc,
		logger:    logger,
	}
}

// Classify judges one comment. It never returns an error: failures are
// folded into the heuristic fallback or an unresolved classification.
func (c *Classifier) Classify(ctx context.Context, text string) moderation.Classification {
	if c.completer == nil {
		return moderation.Unclassifiable(fmt.Errorf("%w: %w", moderation.ErrClassificationUnresolved, ErrNotConfigured))
	}

	var raw string
	err := retry.Do(ctx, c.retry, isTransient, func(ctx context.Context) error {
		out, err := c.completer.Complete(ctx, SystemPrompt, UserPrompt(text))
		if err != nil {
			return err
		}
		raw = out
		return nil
	})

	var schemaErr *SchemaError
	switch {
	case errors.As(err, &schemaErr):
		return c.fallback(text, schemaErr)
	case err != nil:
		c.logger.Warn("comment left unclassified", "error", err)
		return moderation.Unclassifiable(fmt.Errorf("%w: %w", moderation.ErrClassificationUnresolved, err))
	}

	cls, err := ParseResponse(raw)
	if err != nil {
		errors.As(err, &schemaErr)
		return c.fallback(text, schemaErr)
	}
	return cls
}

// Heuristic classifies text with the pattern heuristic alone.
func (c *Classifier) Heuristic(text string) moderation.Classification {
	return c.heuristic.Classify(text)
}

func (c *Classifier) fallback(text string, cause *SchemaError) moderation.Classification {
	c.logger.Warn("AI response rejected, using pattern heuristic", "error", cause)
	cls := c.heuristic.Classify(text)
	cls.Reason = fmt.Sprintf("%s (AI response rejected: %s)", cls.Reason, cause.Reason)
	return cls
}

func isTransient(err error) bool {
	var up *UpstreamError
	return errors.As(err, &up) && up.Transient
}
