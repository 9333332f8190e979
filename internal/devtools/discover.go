package devtools

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// discoveryClient is the HTTP client for the /json discovery endpoints.
// Explicit dial and header timeouts so a hung browser can't wedge
// startup; the endpoint is local, so these are generous.
var discoveryClient = &http.Client{
	Timeout: 10 * time.Second,
	Transport: &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: 5 * time.Second,
		MaxIdleConns:          2,
	},
}

// DiscoverBrowserURL asks the browser's HTTP endpoint (e.g.
// http://127.0.0.1:9222) for its WebSocket debugger URL.
func DiscoverBrowserURL(ctx context.Context, endpoint string) (string, error) {
	var version struct {
		Browser              string `json:"Browser"`
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := getJSON(ctx, endpoint+"/json/version", &version); err != nil {
		return "", fmt.Errorf("discover browser: %w", err)
	}
	if version.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("discover browser: endpoint returned no webSocketDebuggerUrl")
	}
	return version.WebSocketDebuggerURL, nil
}

// Probe checks whether the DevTools endpoint is reachable. Suitable as
// a connwatch probe function.
func Probe(endpoint string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var version struct {
			Browser string `json:"Browser"`
		}
		return getJSON(ctx, endpoint+"/json/version", &version)
	}
}

func getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := discoveryClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// NormalizeEndpoint adds the http scheme when the configured endpoint
// omits it.
func NormalizeEndpoint(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return "http://" + endpoint
}
