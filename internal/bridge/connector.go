package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Status classifies the result of a bridge status probe.
type Status int

const (
	// StatusSuccess means the bridge answered with its full configuration.
	StatusSuccess Status = iota
	// StatusUnauthorized means the bridge is reachable but the token is not
	// whitelisted yet. Recoverable via the link-button handshake.
	StatusUnauthorized
	// StatusFail means a transport failure or an unrecognized response body.
	StatusFail
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Prompter obtains user confirmation during discovery and authorization.
// Implementations may block until the user responds.
type Prompter interface {
	// ConfirmLink asks the user to press the bridge's link button. Returns
	// false when the user abandons the flow.
	ConfirmLink(ctx context.Context) (bool, error)
	// RetryDiscovery asks whether the portal lookup should run once more.
	RetryDiscovery(ctx context.Context) (bool, error)
	// ManualAddress asks for a bridge address typed in by hand. ok is false
	// when the user declines to enter one.
	ManualAddress(ctx context.Context) (addr string, ok bool, err error)
}

// Cache persists the address+token pair between runs.
type Cache interface {
	LoadPairing() (address, token string, ok bool, err error)
	SavePairing(address, token string) error
}

// maxAuthAttempts bounds the verify -> prompt -> register cycle.
const maxAuthAttempts = 3

// ConnectorOptions configures a Connector.
type ConnectorOptions struct {
	// PortalURL is the N-UPnP lookup endpoint.
	PortalURL string
	// Timeout bounds every HTTP call the connector makes.
	Timeout time.Duration
	// Prompter supplies user confirmations. Optional; without it the retry
	// and manual-entry fallbacks are skipped and authorization registers
	// without waiting for confirmation.
	Prompter Prompter
	// Cache supplies and persists the address+token pair. Optional.
	Cache Cache
	// Address and Token seed the discovery chain, taking precedence over
	// the cache. Usually come from the config file.
	Address string
	Token   string
	// AppName is the devicetype prefix sent during registration.
	AppName string
}

// Connector produces an authorized Session using a deterministic fallback
// chain: seeded/cached address, portal lookup, one prompted retry of the
// lookup, manual entry.
type Connector struct {
	portalURL  string
	httpClient *http.Client
	prompter   Prompter
	cache      Cache
	seedAddr   string
	seedToken  string
	appName    string
}

// NewConnector creates a Connector.
func NewConnector(opts ConnectorOptions) *Connector {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.PortalURL == "" {
		opts.PortalURL = "https://discovery.meethue.com/"
	}
	if opts.AppName == "" {
		opts.AppName = "presenced"
	}

	return &Connector{
		portalURL:  opts.PortalURL,
		httpClient: &http.Client{Timeout: opts.Timeout},
		prompter:   opts.Prompter,
		cache:      opts.Cache,
		seedAddr:   opts.Address,
		seedToken:  opts.Token,
		appName:    opts.AppName,
	}
}

// Connect runs discovery and authorization, producing a session with the
// token set. On success the pairing is written back to the cache. Any
// terminal failure is a *ConnectionError naming the stage that failed.
func (c *Connector) Connect(ctx context.Context) (*Session, error) {
	address, token, err := c.Discover(ctx)
	if err != nil {
		return nil, &ConnectionError{Stage: StageDiscovery, Err: err}
	}

	token, err = c.Authorize(ctx, address, token)
	if err != nil {
		return nil, &ConnectionError{Stage: StageAuthorization, Err: err}
	}

	session := RestoreSession(address, token)

	if c.cache != nil {
		if err := c.cache.SavePairing(address, token); err != nil {
			log.Warn().Err(err).Msg("Failed to persist bridge pairing")
		}
	}

	log.Info().Str("address", address).Msg("Bridge session established")
	return session, nil
}

// Discover returns the first usable bridge address found by the fallback
// chain, together with the token paired with it if one was cached. An
// address is usable when a status probe does not report StatusFail, so a
// reachable-but-unauthorized bridge still counts as found.
func (c *Connector) Discover(ctx context.Context) (string, string, error) {
	// (a) seeded or cached pair
	if addr, token, ok := c.knownPairing(); ok {
		if c.Verify(ctx, addr, token) != StatusFail {
			log.Debug().Str("address", addr).Msg("Using known bridge address")
			return addr, token, nil
		}
		log.Warn().Str("address", addr).Msg("Known bridge address no longer responds, discovering")
	}

	// (b) portal lookup
	if addr, err := c.lookupPortal(ctx); err != nil {
		log.Warn().Err(err).Msg("Portal lookup failed")
	} else if addr != "" {
		return addr, "", nil
	}

	if c.prompter != nil {
		// (c) one prompted retry of the lookup
		retry, err := c.prompter.RetryDiscovery(ctx)
		if err != nil {
			return "", "", err
		}
		if retry {
			if addr, err := c.lookupPortal(ctx); err != nil {
				log.Warn().Err(err).Msg("Portal lookup retry failed")
			} else if addr != "" {
				return addr, "", nil
			}
		}

		// (d) manual entry
		addr, ok, err := c.prompter.ManualAddress(ctx)
		if err != nil {
			return "", "", err
		}
		if ok && addr != "" {
			if c.Verify(ctx, addr, "") != StatusFail {
				return addr, "", nil
			}
			log.Warn().Str("address", addr).Msg("Manually entered address does not respond")
		}
	}

	return "", "", ErrBridgeNotFound
}

func (c *Connector) knownPairing() (string, string, bool) {
	if c.seedAddr != "" {
		return c.seedAddr, c.seedToken, true
	}
	if c.cache == nil {
		return "", "", false
	}
	addr, token, ok, err := c.cache.LoadPairing()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load cached bridge pairing")
		return "", "", false
	}
	if !ok || addr == "" {
		return "", "", false
	}
	return addr, token, true
}

// portalRecord is one candidate from the N-UPnP lookup endpoint.
type portalRecord struct {
	ID                string `json:"id"`
	InternalIPAddress string `json:"internalipaddress"`
}

// lookupPortal queries the discovery endpoint and returns the first
// candidate address that answers a status probe. An empty string with a nil
// error means the portal returned no usable candidates.
func (c *Connector) lookupPortal(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.portalURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("portal returned status %d", resp.StatusCode)
	}

	var records []portalRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return "", fmt.Errorf("failed to decode portal response: %w", err)
	}

	log.Debug().Int("candidates", len(records)).Msg("Portal lookup finished")

	for _, rec := range records {
		if rec.InternalIPAddress == "" {
			continue
		}
		if c.Verify(ctx, rec.InternalIPAddress, "") != StatusFail {
			return rec.InternalIPAddress, nil
		}
		log.Debug().Str("address", rec.InternalIPAddress).Msg("Portal candidate does not respond")
	}

	return "", nil
}

// Verify issues a lightweight status probe against the bridge and
// classifies the response by structural markers. It never returns a
// transport error: transport failures and unrecognized bodies both map to
// StatusFail.
func (c *Connector) Verify(ctx context.Context, address, token string) Status {
	url := fmt.Sprintf("http://%s/api/%s/config", address, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StatusFail
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("address", address).Msg("Status probe transport failure")
		return StatusFail
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return StatusFail
	}

	return classifyProbe(body)
}

// classifyProbe maps a probe response body onto a Status. A configuration
// object carrying the linkbutton field means the token is whitelisted; a
// Hue error array means the bridge is reachable but the token is not.
func classifyProbe(body []byte) Status {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err == nil {
		if _, ok := obj["linkbutton"]; ok {
			return StatusSuccess
		}
		return StatusFail
	}

	var results []apiResult
	if err := json.Unmarshal(body, &results); err == nil {
		for _, r := range results {
			if r.Error != nil {
				return StatusUnauthorized
			}
		}
	}

	return StatusFail
}

// apiResult is one element of the bridge's result-array responses.
type apiResult struct {
	Success map[string]json.RawMessage `json:"success,omitempty"`
	Error   *apiError                  `json:"error,omitempty"`
}

type apiError struct {
	Type        int    `json:"type"`
	Address     string `json:"address"`
	Description string `json:"description"`
}

// Authorize obtains a whitelisted token for the bridge at address. The
// whole verify -> prompt -> register cycle runs at most maxAuthAttempts
// times. A StatusFail probe aborts immediately without prompting, since it
// indicates the address itself is bad.
func (c *Connector) Authorize(ctx context.Context, address, token string) (string, error) {
	for attempt := 1; attempt <= maxAuthAttempts; attempt++ {
		switch c.Verify(ctx, address, token) {
		case StatusSuccess:
			log.Debug().Str("address", address).Msg("Token already whitelisted")
			return token, nil

		case StatusFail:
			return "", fmt.Errorf("bridge at %s stopped answering status probes: %w", address, ErrAuthorizationFailed)

		case StatusUnauthorized:
			if c.prompter != nil {
				confirmed, err := c.prompter.ConfirmLink(ctx)
				if err != nil {
					return "", err
				}
				if !confirmed {
					return "", ErrAborted
				}
			}

			fresh, err := c.register(ctx, address)
			if err != nil {
				log.Warn().Err(err).Int("attempt", attempt).Msg("Registration attempt failed")
				continue
			}
			log.Info().Str("address", address).Msg("Bridge issued a new access token")
			return fresh, nil
		}
	}

	return "", fmt.Errorf("no token after %d attempts: %w", maxAuthAttempts, ErrAuthorizationFailed)
}

// register issues the registration request against the unauthenticated API
// root and returns the token the bridge hands out. Fails until the link
// button has been pressed.
func (c *Connector) register(ctx context.Context, address string) (string, error) {
	deviceType := fmt.Sprintf("%s#%s", c.appName, shortClientID())
	payload, err := json.Marshal(map[string]string{"devicetype": deviceType})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("http://%s/api", address)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("registration request failed: %w", err)
	}
	defer resp.Body.Close()

	var results []struct {
		Success *struct {
			Username string `json:"username"`
		} `json:"success,omitempty"`
		Error *apiError `json:"error,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return "", fmt.Errorf("failed to decode registration response: %w", err)
	}

	for _, r := range results {
		if r.Success != nil && r.Success.Username != "" {
			return r.Success.Username, nil
		}
		if r.Error != nil {
			return "", fmt.Errorf("bridge rejected registration: %s", r.Error.Description)
		}
	}

	return "", fmt.Errorf("registration response carried no token")
}

// shortClientID returns a random identifier short enough to fit the
// bridge's 40-character devicetype limit.
func shortClientID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}
