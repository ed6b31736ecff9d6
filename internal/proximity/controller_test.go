package proximity

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dokzlo13/presenced/internal/hue"
)

type issuedCommand struct {
	lightID string
	update  hue.StateUpdate
}

// fakeCommander records issued commands and can fail selected lights.
type fakeCommander struct {
	lights   []hue.Light
	failOn   map[string]bool
	listErr  error
	commands []issuedCommand
}

func (f *fakeCommander) Lights(ctx context.Context) ([]hue.Light, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.lights, nil
}

func (f *fakeCommander) SetLightState(ctx context.Context, id string, update hue.StateUpdate) error {
	f.commands = append(f.commands, issuedCommand{lightID: id, update: update})
	if f.failOn[id] {
		return fmt.Errorf("light %s is sulking", id)
	}
	return nil
}

func lightsWithPower(on ...bool) []hue.Light {
	out := make([]hue.Light, 0, len(on))
	for i, o := range on {
		out = append(out, hue.Light{
			ID:    fmt.Sprintf("%d", i+1),
			Name:  fmt.Sprintf("Light %d", i+1),
			State: hue.LightState{On: o, Reachable: true},
		})
	}
	return out
}

func newTestController(client Commander) *Controller {
	// Tiny delays keep the tests fast without changing the sequencing.
	return NewController(client, time.Nanosecond, time.Millisecond)
}

func TestHandleBatchInRange(t *testing.T) {
	fake := &fakeCommander{lights: lightsWithPower(true, false, true)}
	ctrl := newTestController(fake)

	if err := ctrl.HandleBatch(context.Background(), samplesOf(-50, -60)); err != nil {
		t.Fatalf("HandleBatch() error = %v", err)
	}

	// Only the one light that was off gets a command.
	if len(fake.commands) != 1 {
		t.Fatalf("issued %d commands, want 1", len(fake.commands))
	}
	cmd := fake.commands[0]
	if cmd.lightID != "2" {
		t.Errorf("command targeted light %s, want 2", cmd.lightID)
	}
	if cmd.update.On == nil || !*cmd.update.On {
		t.Errorf("command update = %+v, want power on", cmd.update)
	}
	if ctrl.Last() != InRange {
		t.Errorf("Last() = %v, want InRange", ctrl.Last())
	}
}

func TestHandleBatchOutOfRange(t *testing.T) {
	fake := &fakeCommander{lights: lightsWithPower(true, false, true)}
	ctrl := newTestController(fake)

	if err := ctrl.HandleBatch(context.Background(), samplesOf(OutOfRangeRSSI)); err != nil {
		t.Fatalf("HandleBatch() error = %v", err)
	}

	// Every light gets power=false, regardless of prior state.
	if len(fake.commands) != 3 {
		t.Fatalf("issued %d commands, want 3", len(fake.commands))
	}
	for _, cmd := range fake.commands {
		if cmd.update.On == nil || *cmd.update.On {
			t.Errorf("light %s update = %+v, want power off", cmd.lightID, cmd.update)
		}
	}
}

func TestHandleBatchPartialUpdatesOnly(t *testing.T) {
	fake := &fakeCommander{lights: lightsWithPower(false)}
	ctrl := newTestController(fake)

	if err := ctrl.HandleBatch(context.Background(), samplesOf(-40)); err != nil {
		t.Fatalf("HandleBatch() error = %v", err)
	}

	if len(fake.commands) != 1 {
		t.Fatalf("issued %d commands, want 1", len(fake.commands))
	}
	u := fake.commands[0].update
	if u.Bri != nil || u.Hue != nil || u.Sat != nil || u.XY != nil || u.Alert != nil || u.Effect != nil {
		t.Errorf("power transition carried extra fields: %+v", u)
	}
}

func TestHandleBatchSuppressesUnchangedClassification(t *testing.T) {
	fake := &fakeCommander{lights: lightsWithPower(false, false)}
	ctrl := newTestController(fake)

	if err := ctrl.HandleBatch(context.Background(), samplesOf(-50)); err != nil {
		t.Fatalf("first HandleBatch() error = %v", err)
	}
	issued := len(fake.commands)
	if issued != 2 {
		t.Fatalf("first batch issued %d commands, want 2", issued)
	}

	// Same classification again: no commands at all.
	if err := ctrl.HandleBatch(context.Background(), samplesOf(-45)); err != nil {
		t.Fatalf("second HandleBatch() error = %v", err)
	}
	if len(fake.commands) != issued {
		t.Errorf("second batch issued %d commands, want 0", len(fake.commands)-issued)
	}
}

func TestHandleBatchTransitionSequence(t *testing.T) {
	// in -> out -> in over the same three lights.
	fake := &fakeCommander{lights: lightsWithPower(true, false, true)}
	ctrl := newTestController(fake)

	if err := ctrl.HandleBatch(context.Background(), samplesOf(-50)); err != nil {
		t.Fatalf("in-range batch error = %v", err)
	}
	if got := len(fake.commands); got != 1 {
		t.Fatalf("in-range batch issued %d commands, want 1", got)
	}

	if err := ctrl.HandleBatch(context.Background(), samplesOf(OutOfRangeRSSI, -40)); err != nil {
		t.Fatalf("out-of-range batch error = %v", err)
	}
	if got := len(fake.commands) - 1; got != 3 {
		t.Fatalf("out-of-range batch issued %d commands, want 3", got)
	}

	// Simulate the lights actually turning off before the next batch.
	fake.lights = lightsWithPower(false, false, false)

	if err := ctrl.HandleBatch(context.Background(), samplesOf(-55)); err != nil {
		t.Fatalf("second in-range batch error = %v", err)
	}
	if got := len(fake.commands) - 4; got != 3 {
		t.Fatalf("second in-range batch issued %d commands, want 3", got)
	}
}

func TestHandleBatchContinuesPastFailedLight(t *testing.T) {
	fake := &fakeCommander{
		lights: lightsWithPower(true, true, true),
		failOn: map[string]bool{"2": true},
	}
	ctrl := newTestController(fake)

	if err := ctrl.HandleBatch(context.Background(), samplesOf(OutOfRangeRSSI)); err != nil {
		t.Fatalf("HandleBatch() error = %v", err)
	}

	// The failed light does not stop the rest of the batch.
	if len(fake.commands) != 3 {
		t.Errorf("attempted %d commands, want 3", len(fake.commands))
	}
	if ctrl.Last() != OutOfRange {
		t.Errorf("Last() = %v, want OutOfRange", ctrl.Last())
	}
}

func TestHandleBatchRetriesAfterAllCommandsFail(t *testing.T) {
	// Every light refuses the command, as during a transient bridge outage.
	fake := &fakeCommander{
		lights: lightsWithPower(true, true, true),
		failOn: map[string]bool{"1": true, "2": true, "3": true},
	}
	ctrl := newTestController(fake)

	if err := ctrl.HandleBatch(context.Background(), samplesOf(OutOfRangeRSSI)); err != nil {
		t.Fatalf("first HandleBatch() error = %v", err)
	}
	if got := len(fake.commands); got != 3 {
		t.Fatalf("first batch attempted %d commands, want 3", got)
	}
	// Nothing was applied, so the transition must not stick.
	if ctrl.Last() != Unknown {
		t.Fatalf("Last() = %v after fully failed batch, want Unknown", ctrl.Last())
	}

	// The same classification again is not suppressed.
	if err := ctrl.HandleBatch(context.Background(), samplesOf(OutOfRangeRSSI)); err != nil {
		t.Fatalf("second HandleBatch() error = %v", err)
	}
	if got := len(fake.commands) - 3; got != 3 {
		t.Fatalf("second batch attempted %d commands, want 3", got)
	}

	// Bridge recovers: the batch applies and the transition is recorded.
	fake.failOn = nil
	if err := ctrl.HandleBatch(context.Background(), samplesOf(OutOfRangeRSSI)); err != nil {
		t.Fatalf("third HandleBatch() error = %v", err)
	}
	if got := len(fake.commands) - 6; got != 3 {
		t.Fatalf("third batch issued %d commands, want 3", got)
	}
	if ctrl.Last() != OutOfRange {
		t.Errorf("Last() = %v, want OutOfRange", ctrl.Last())
	}

	// Now suppression kicks in.
	if err := ctrl.HandleBatch(context.Background(), samplesOf(OutOfRangeRSSI)); err != nil {
		t.Fatalf("fourth HandleBatch() error = %v", err)
	}
	if got := len(fake.commands); got != 9 {
		t.Errorf("fourth batch issued %d commands, want 0", got-9)
	}
}

func TestHandleBatchEmptyBatchIgnored(t *testing.T) {
	fake := &fakeCommander{lights: lightsWithPower(false)}
	ctrl := newTestController(fake)

	if err := ctrl.HandleBatch(context.Background(), nil); err != nil {
		t.Fatalf("HandleBatch() error = %v", err)
	}
	if len(fake.commands) != 0 {
		t.Errorf("empty batch issued %d commands, want 0", len(fake.commands))
	}
	if ctrl.Last() != Unknown {
		t.Errorf("Last() = %v, want Unknown", ctrl.Last())
	}
}

func TestHandleBatchListFailure(t *testing.T) {
	fake := &fakeCommander{listErr: errors.New("bridge is down")}
	ctrl := newTestController(fake)

	err := ctrl.HandleBatch(context.Background(), samplesOf(-50))
	if err == nil {
		t.Fatal("HandleBatch() error = nil, want list failure")
	}
	// The transition did not happen, so the next batch acts again.
	if ctrl.Last() != Unknown {
		t.Errorf("Last() = %v, want Unknown", ctrl.Last())
	}
}

func TestHandleBatchCancelledBetweenCommands(t *testing.T) {
	fake := &fakeCommander{lights: lightsWithPower(true, true, true)}
	// A long command delay so the second limiter wait outlives the context.
	ctrl := NewController(fake, 50*time.Millisecond, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := ctrl.HandleBatch(ctx, samplesOf(OutOfRangeRSSI))
	if err == nil {
		t.Fatal("HandleBatch() error = nil, want cancellation")
	}

	// Partial application: at least one command went out, not all three.
	if len(fake.commands) == 0 || len(fake.commands) == 3 {
		t.Errorf("issued %d commands, want partial batch", len(fake.commands))
	}
}
