// Package hass is the Home Assistant REST client backing the entity
// provider interface. All calls go through the /api surface with a
// long-lived bearer token.
package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/qthlink/qthlink/internal/entity"
)

// Upstream failure classes. Dispatch maps these to the generic caller
// message while the detail goes to the log.
var (
	ErrUnauthorized = errors.New("unauthorized (check access token)")
	ErrNotFound     = errors.New("not found")
	ErrUnreachable  = errors.New("backend unreachable")
)

// Client talks to one Home Assistant instance.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the given base URL and bearer token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// stateJSON is the /api/states wire shape.
type stateJSON struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// ListEntities fetches the full entity set in one bulk query.
func (c *Client) ListEntities(ctx context.Context) ([]entity.Entity, error) {
	body, err := c.request(ctx, http.MethodGet, "/api/states", nil)
	if err != nil {
		return nil, err
	}

	var states []stateJSON
	if err := json.Unmarshal(body, &states); err != nil {
		return nil, fmt.Errorf("decoding states response: %w", err)
	}

	entities := make([]entity.Entity, 0, len(states))
	for _, s := range states {
		if s.EntityID == "" {
			continue
		}
		name := s.EntityID
		if fn, ok := s.Attributes["friendly_name"].(string); ok && fn != "" {
			name = fn
		}
		entities = append(entities, entity.Entity{
			NativeID:   s.EntityID,
			Domain:     entity.ParseDomain(s.EntityID),
			Name:       name,
			State:      s.State,
			Attributes: s.Attributes,
		})
	}
	return entities, nil
}

// TurnOn turns an entity on via its domain's turn_on service.
func (c *Client) TurnOn(ctx context.Context, nativeID string) error {
	return c.callService(ctx, serviceDomain(nativeID), "turn_on", map[string]any{
		"entity_id": nativeID,
	})
}

// TurnOff turns an entity off via its domain's turn_off service.
func (c *Client) TurnOff(ctx context.Context, nativeID string) error {
	return c.callService(ctx, serviceDomain(nativeID), "turn_off", map[string]any{
		"entity_id": nativeID,
	})
}

// SetValue sets a domain-appropriate numeric value: brightness for
// lights, position for covers, temperature for climate, percentage for
// fans, value for number helpers.
func (c *Client) SetValue(ctx context.Context, nativeID string, value float64) error {
	domain := serviceDomain(nativeID)
	data := map[string]any{"entity_id": nativeID}

	var service string
	switch entity.Domain(domain) {
	case entity.DomainLight:
		service = "turn_on"
		data["brightness"] = int(value)
	case entity.DomainCover:
		service = "set_cover_position"
		data["position"] = int(value)
	case entity.DomainClimate:
		service = "set_temperature"
		data["temperature"] = value
	case entity.DomainFan:
		service = "set_percentage"
		data["percentage"] = int(value)
	case entity.DomainInputNumber, entity.DomainNumber:
		service = "set_value"
		data["value"] = value
	default:
		return fmt.Errorf("no set service for domain %q", domain)
	}
	return c.callService(ctx, domain, service, data)
}

// TriggerAutomation fires an automation immediately.
func (c *Client) TriggerAutomation(ctx context.Context, nativeID string) error {
	return c.callService(ctx, "automation", "trigger", map[string]any{
		"entity_id": nativeID,
	})
}

// Ping verifies connectivity and token validity.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, http.MethodGet, "/api/", nil)
	return err
}

func (c *Client) callService(ctx context.Context, domain, service string, data map[string]any) error {
	endpoint := fmt.Sprintf("/api/services/%s/%s", domain, service)
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding service data: %w", err)
	}
	_, err = c.request(ctx, http.MethodPost, endpoint, payload)
	return err
}

func (c *Client) request(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%s: %w", endpoint, ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", endpoint, ErrNotFound)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%s: unexpected status %d", endpoint, resp.StatusCode)
	}
	return respBody, nil
}

func serviceDomain(nativeID string) string {
	if i := strings.IndexByte(nativeID, '.'); i > 0 {
		return nativeID[:i]
	}
	return "homeassistant"
}
