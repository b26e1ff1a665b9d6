package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 3 * time.Second

type invalidationPayload struct {
	PatientID string `json:"patient_id"`
}

// HTTPNotifier posts {"patient_id": ...} to a cache invalidation endpoint.
type HTTPNotifier struct {
	url    string
	token  string
	client *http.Client
}

type HTTPNotifierParams struct {
	URL     string
	Token   string
	Timeout time.Duration
	Client  *http.Client
}

func NewHTTPNotifier(p HTTPNotifierParams) (*HTTPNotifier, error) {
	url := strings.TrimSpace(p.URL)
	if url == "" {
		return nil, fmt.Errorf("invalidation url required")
	}
	client := p.Client
	if client == nil {
		timeout := p.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPNotifier{
		url:    url,
		token:  strings.TrimSpace(p.Token),
		client: client,
	}, nil
}

func (n *HTTPNotifier) InvalidatePatient(ctx context.Context, patientID string) error {
	id, err := cleanPatientID(patientID)
	if err != nil {
		return err
	}

	body, err := json.Marshal(invalidationPayload{PatientID: id})
	if err != nil {
		return fmt.Errorf("encode invalidation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build invalidation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post invalidation: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("invalidation endpoint returned %d", resp.StatusCode)
	}
	return nil
}
