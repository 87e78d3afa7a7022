package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBody = 1 << 20

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// postJSON posts payload and returns the status code and response body.
func postJSON(ctx context.Context, client *http.Client, endpoint string, headers map[string]string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// robotResponse is the reply shape shared by the enterprise IM robot APIs.
type robotResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func checkRobotResponse(status int, body []byte) error {
	if status >= http.StatusBadRequest {
		return fmt.Errorf("http %d", status)
	}
	var resp robotResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.ErrCode != 0 {
		return fmt.Errorf("errcode %d: %s", resp.ErrCode, resp.ErrMsg)
	}
	return nil
}

// fanOut attempts every endpoint and succeeds only if all of them do.
// Successful sends are not undone when another endpoint fails.
func fanOut(ctx context.Context, noun string, endpoints []string, send func(ctx context.Context, endpoint string) error) (bool, string) {
	var failed []string
	for _, ep := range endpoints {
		if err := send(ctx, ep); err != nil {
			failed = append(failed, fmt.Sprintf("%s (%v)", endpointLabel(ep), err))
		}
	}
	if len(failed) == 0 {
		return true, fmt.Sprintf("delivered to %d %s", len(endpoints), noun)
	}
	return false, fmt.Sprintf("%d of %d %s failed: %s", len(failed), len(endpoints), noun, strings.Join(failed, "; "))
}

// endpointLabel drops query strings, which carry robot access tokens.
func endpointLabel(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String()
}
