package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// HTTPDispatcher calls the external reply dispatcher over HTTP.
type HTTPDispatcher struct {
	baseURL string
	token   string
	logger  *slog.Logger
	http    *http.Client
}

// NewHTTPDispatcher creates a dispatcher client for the given base URL.
func NewHTTPDispatcher(log *slog.Logger, baseURL, token string, timeout time.Duration) (*HTTPDispatcher, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("dispatcher: base url is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPDispatcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		logger:  log.With(slog.String("client", "dispatcher")),
		http: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Dispatch posts the request to {base}/v1/dispatch and decodes the reply.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, req Request) (Reply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Reply{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/dispatch", bytes.NewReader(body))
	if err != nil {
		return Reply{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.http.Do(httpReq)
	if err != nil {
		return Reply{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return Reply{}, fmt.Errorf("dispatcher error (%d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var reply Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return Reply{}, err
	}
	return reply, nil
}
