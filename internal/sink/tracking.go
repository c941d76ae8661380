package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"beacon/internal/constants"
	"beacon/pkg/errors"
)

const (
	trackEndpoint  = "/track"
	engageEndpoint = "/engage#profile-set"
)

// HTTPTrackingSink talks to the analytics platform's ingestion API. Events
// and profile updates are posted as single-element JSON arrays.
type HTTPTrackingSink struct {
	apiURL string
	token  string
	client *http.Client
}

func NewHTTPTrackingSink(apiURL, token string) *HTTPTrackingSink {
	return &HTTPTrackingSink{
		apiURL: apiURL,
		token:  token,
		client: &http.Client{
			Timeout: constants.DefaultHTTPTimeout,
		},
	}
}

func (s *HTTPTrackingSink) Track(ctx context.Context, event string, properties map[string]interface{}) error {
	props := make(map[string]interface{}, len(properties)+3)
	for k, v := range properties {
		props[k] = v
	}
	props["token"] = s.token
	if _, ok := props[constants.FieldTime]; !ok {
		props[constants.FieldTime] = time.Now().Unix()
	}
	if _, ok := props[constants.FieldInsertID]; !ok {
		props[constants.FieldInsertID] = uuid.NewString()
	}

	body := map[string]interface{}{
		"event":      event,
		"properties": props,
	}

	return s.send(ctx, trackEndpoint, body)
}

func (s *HTTPTrackingSink) SetProfile(ctx context.Context, distinctID, ip string, properties map[string]interface{}) error {
	body := map[string]interface{}{
		"$token":       s.token,
		"$distinct_id": distinctID,
		"$set":         properties,
	}
	if ip != "" {
		body["$ip"] = ip
	}

	return s.send(ctx, engageEndpoint, body)
}

func (s *HTTPTrackingSink) send(ctx context.Context, endpoint string, payload map[string]interface{}) error {
	data, err := json.Marshal([]interface{}{payload})
	if err != nil {
		return fmt.Errorf("failed to marshal tracking payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/plain")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.ErrSinkDelivery.WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.ErrSinkDelivery.
			WithStatus(resp.StatusCode).
			WithDetail("message", fmt.Sprintf("tracking api returned status %d: %s", resp.StatusCode, respBody))
	}

	return nil
}
