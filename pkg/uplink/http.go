package uplink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const availabilityRetry = 5 * time.Second

var ErrUnexpectedStatus = errors.New("uplink: unexpected status code")

// HTTPSink posts events as JSON to a sensor data agent
type HTTPSink struct {
	url    string
	apiKey string
	botID  string
	client *http.Client
	// wait between availability probes
	retry time.Duration
}

func NewHTTPSink(url, apiKey, botID string, timeout time.Duration) *HTTPSink {
	return &HTTPSink{
		url:    url,
		apiKey: apiKey,
		botID:  botID,
		client: &http.Client{Timeout: timeout},
		retry:  availabilityRetry,
	}
}

// WaitUntilAvailable probes the agent until it answers or ctx is done
func (obj *HTTPSink) WaitUntilAvailable(ctx context.Context) error {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, obj.url, nil)
		if err != nil {
			return fmt.Errorf("failed to create probe request: %w", err)
		}
		resp, err := obj.client.Do(req)
		if err == nil {
			resp.Body.Close()
			log.Info().Str("url", obj.url).Msg("got response from API")
			return nil
		}
		log.Warn().Err(err).Str("url", obj.url).Dur("retry", obj.retry).Msg("failed to connect to server")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(obj.retry):
		}
	}
}

func (obj *HTTPSink) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", ev.Event, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, obj.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("jottai-sensor-data-key", obj.apiKey)
	req.Header.Set("jottai-bot-id", obj.botID)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := obj.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post %s event: %w", ev.Event, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: %d for %s event", ErrUnexpectedStatus, resp.StatusCode, ev.Event)
	}
	return nil
}

func (obj *HTTPSink) Close() error {
	obj.client.CloseIdleConnections()
	return nil
}
