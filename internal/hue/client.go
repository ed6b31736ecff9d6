// Package hue is a typed binding over the bridge's v1 command protocol.
package hue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/presenced/internal/bridge"
)

var (
	// ErrUnauthorized means the session carries no access token. The client
	// fails fast instead of issuing a request that the bridge would reject.
	ErrUnauthorized = errors.New("session is not authorized")

	// ErrNotFound means the bridge does not know the requested light.
	ErrNotFound = errors.New("light not found")
)

// CommandError is a failed light operation, carrying the operation and the
// light it targeted.
type CommandError struct {
	Op      string
	LightID string
	Err     error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	if e.LightID == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed for light %s: %v", e.Op, e.LightID, e.Err)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// Namer supplies display-name overrides for lights.
type Namer interface {
	Lookup(id string) (string, bool)
}

// Client issues typed requests against an authorized bridge session.
type Client struct {
	session    *bridge.Session
	httpClient *http.Client
	namer      Namer
}

// NewClient creates a client for the given session.
func NewClient(session *bridge.Session, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		session:    session,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithNamer attaches a display-name override source and returns the client.
func (c *Client) WithNamer(n Namer) *Client {
	c.namer = n
	return c
}

// Session returns the session the client routes requests through.
func (c *Client) Session() *bridge.Session {
	return c.session
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) request(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	if !c.session.Authorized() {
		return nil, ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, method, c.session.BaseURL()+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

// Lights returns the bridge's light enumeration, unreachable lights
// filtered out. Entries that fail to decode are skipped individually
// rather than aborting the whole call.
func (c *Client) Lights(ctx context.Context) ([]Light, error) {
	resp, err := c.request(ctx, http.MethodGet, "lights", nil)
	if err != nil {
		return nil, &CommandError{Op: "list lights", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &CommandError{Op: "list lights", Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	// Entries stay raw until the per-entry decode so that one bad entry,
	// whatever its shape, never aborts the whole enumeration.
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &CommandError{Op: "list lights", Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	lights := make([]Light, 0, len(raw))
	for id, rawEntry := range raw {
		var entry map[string]any
		if err := json.Unmarshal(rawEntry, &entry); err != nil {
			log.Warn().Err(err).Str("light", id).Msg("Skipping malformed light entry")
			continue
		}
		light, err := decodeLight(id, entry)
		if err != nil {
			log.Warn().Err(err).Str("light", id).Msg("Skipping malformed light entry")
			continue
		}
		if !light.State.Reachable {
			log.Debug().Str("light", id).Str("name", light.Name).Msg("Skipping unreachable light")
			continue
		}
		if c.namer != nil {
			if name, ok := c.namer.Lookup(id); ok {
				light.Name = name
			}
		}
		lights = append(lights, light)
	}

	// The wire format is a JSON object, so enumeration order is arbitrary.
	// Sort numerically by id for deterministic sequencing downstream.
	sort.Slice(lights, func(i, j int) bool {
		a, aerr := strconv.Atoi(lights[i].ID)
		b, berr := strconv.Atoi(lights[j].ID)
		if aerr != nil || berr != nil {
			return lights[i].ID < lights[j].ID
		}
		return a < b
	})

	return lights, nil
}

// Light returns one light by id.
func (c *Client) Light(ctx context.Context, id string) (*Light, error) {
	resp, err := c.request(ctx, http.MethodGet, "lights/"+id, nil)
	if err != nil {
		return nil, &CommandError{Op: "get light", LightID: id, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &CommandError{Op: "get light", LightID: id, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &CommandError{Op: "get light", LightID: id, Err: err}
	}

	var entry map[string]any
	if err := json.Unmarshal(body, &entry); err != nil {
		// An unknown id comes back as an error array instead of a light
		// object.
		var results []struct {
			Error *struct {
				Type        int    `json:"type"`
				Description string `json:"description"`
			} `json:"error,omitempty"`
		}
		if json.Unmarshal(body, &results) == nil {
			for _, r := range results {
				if r.Error == nil {
					continue
				}
				// Type 3 is "resource not available".
				if r.Error.Type == 3 {
					return nil, ErrNotFound
				}
				return nil, &CommandError{Op: "get light", LightID: id, Err: fmt.Errorf("bridge error: %s", r.Error.Description)}
			}
		}
		return nil, &CommandError{Op: "get light", LightID: id, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	if _, ok := entry["state"]; !ok {
		return nil, ErrNotFound
	}

	light, err := decodeLight(id, entry)
	if err != nil {
		return nil, &CommandError{Op: "get light", LightID: id, Err: err}
	}
	if c.namer != nil {
		if name, ok := c.namer.Lookup(id); ok {
			light.Name = name
		}
	}

	return &light, nil
}

// SetLightState pushes a partial state change to one light. Only the fields
// set on the update are sent.
func (c *Client) SetLightState(ctx context.Context, id string, update StateUpdate) error {
	if update.IsEmpty() {
		log.Debug().Str("light", id).Msg("Empty state update, nothing to send")
		return nil
	}

	payload, err := json.Marshal(update)
	if err != nil {
		return &CommandError{Op: "set state", LightID: id, Err: err}
	}

	resp, err := c.request(ctx, http.MethodPut, "lights/"+id+"/state", bytes.NewReader(payload))
	if err != nil {
		return &CommandError{Op: "set state", LightID: id, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &CommandError{Op: "set state", LightID: id, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	// The bridge answers 200 even when individual fields are rejected; the
	// per-field verdicts are in the result array.
	var results []struct {
		Error *struct {
			Description string `json:"description"`
		} `json:"error,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err == nil {
		for _, r := range results {
			if r.Error != nil {
				return &CommandError{Op: "set state", LightID: id, Err: fmt.Errorf("bridge rejected update: %s", r.Error.Description)}
			}
		}
	}

	return nil
}

// Search triggers a bridge-side scan for new lights. Fire-and-forget: only
// HTTP-level success is checked.
func (c *Client) Search(ctx context.Context) error {
	resp, err := c.request(ctx, http.MethodPut, "lights", nil)
	if err != nil {
		return &CommandError{Op: "search", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &CommandError{Op: "search", Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	log.Info().Msg("Triggered bridge light scan")
	return nil
}

// decodeLight maps one enumeration entry onto a Light. Decoding is lenient
// about unknown fields but rejects entries whose known fields carry the
// wrong shape.
func decodeLight(id string, entry map[string]any) (Light, error) {
	var light Light
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &light,
	})
	if err != nil {
		return Light{}, err
	}
	if err := dec.Decode(entry); err != nil {
		return Light{}, fmt.Errorf("malformed light entry: %w", err)
	}
	light.ID = id
	return light, nil
}
