package proximity

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/presenced/internal/hue"
)

// Commander is the slice of the fixture client the controller drives.
type Commander interface {
	Lights(ctx context.Context) ([]hue.Light, error)
	SetLightState(ctx context.Context, id string, update hue.StateUpdate) error
}

// Controller consumes sample batches and toggles light power on
// classification transitions. Commands are paced one at a time to avoid
// overwhelming the bridge's command intake.
//
// A Controller is not safe for concurrent use; batches must be handed to it
// one at a time.
type Controller struct {
	client      Commander
	settleDelay time.Duration
	limiter     *rate.Limiter
	last        Classification
}

// NewController creates a Controller. Zero delays fall back to the
// defaults: 250ms between commands, 1s settle after a batch.
func NewController(client Commander, commandDelay, settleDelay time.Duration) *Controller {
	if commandDelay == 0 {
		commandDelay = 250 * time.Millisecond
	}
	if settleDelay == 0 {
		settleDelay = 1 * time.Second
	}

	return &Controller{
		client:      client,
		settleDelay: settleDelay,
		limiter:     rate.NewLimiter(rate.Every(commandDelay), 1),
		last:        Unknown,
	}
}

// Last returns the classification of the last handled batch.
func (c *Controller) Last() Classification {
	return c.last
}

// HandleBatch classifies one batch and issues the resulting power
// transitions. A batch whose classification matches the last handled one is
// suppressed entirely. Per-light command failures are reported and the
// remaining lights still processed; only context cancellation aborts the
// batch, leaving partial application in place.
func (c *Controller) HandleBatch(ctx context.Context, batch []Sample) error {
	cls := Classify(batch)
	if cls == Unknown {
		log.Debug().Msg("Empty sample batch, ignoring")
		return nil
	}
	if cls == c.last {
		log.Debug().Stringer("classification", cls).Msg("Classification unchanged, suppressing commands")
		return nil
	}

	log.Info().
		Stringer("from", c.last).
		Stringer("to", cls).
		Int("samples", len(batch)).
		Msg("Proximity transition")

	lights, err := c.client.Lights(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch lights: %w", err)
	}

	issued, failed := 0, 0
	for _, light := range lights {
		if cls == InRange && light.State.On {
			// Already on, skip to avoid redundant traffic.
			continue
		}
		// OutOfRange commands every light off unconditionally, even ones
		// believed off already: local state may be stale.

		if err := c.limiter.Wait(ctx); err != nil {
			// Cancelled between commands. Issued commands stay applied.
			log.Warn().Int("issued", issued).Msg("Batch cancelled mid-flight")
			return err
		}

		if err := c.client.SetLightState(ctx, light.ID, hue.Power(cls == InRange)); err != nil {
			failed++
			log.Error().Err(err).Str("light", light.ID).Str("name", light.Name).Msg("Light command failed")
			continue
		}
		issued++
	}

	// Record the transition only when something was applied or nothing
	// needed applying. A batch whose commands all failed leaves the lights
	// untouched, so the next batch with the same classification must not be
	// suppressed.
	if issued > 0 || failed == 0 {
		c.last = cls
	} else {
		log.Warn().
			Stringer("classification", cls).
			Int("failed", failed).
			Msg("Every command failed, transition not recorded")
	}

	// Let in-flight commands finish before the cycle counts as complete.
	select {
	case <-time.After(c.settleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	log.Info().
		Stringer("classification", cls).
		Int("issued", issued).
		Int("failed", failed).
		Msg("Proximity batch complete")

	return nil
}
