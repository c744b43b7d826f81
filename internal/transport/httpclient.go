package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/switchboard-dev/switchboard/internal/types"
)

// newHTTPClient builds the shared client for provider calls.
// CRITICAL: DisableCompression is required for correct streaming. With
// compression on, Go asks for gzip and the SSE scanner would see
// compressed bytes instead of event lines.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DisableCompression: true,
		},
	}
}

// postJSON sends a JSON body and returns the raw response. The caller
// owns the response body.
func postJSON(ctx context.Context, hc *http.Client, url string, headers http.Header, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.Wrap(types.CodeUnexpectedResponse, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, types.Wrap(types.CodeNetworkError, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, netError(url, err)
	}
	return resp, nil
}

// getJSON performs a GET and decodes the body into out (out may be nil).
func getJSON(ctx context.Context, hc *http.Client, url string, headers http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.Wrap(types.CodeNetworkError, "build request", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := hc.Do(req)
	if err != nil {
		return netError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.Wrap(types.CodeUnexpectedResponse, "decode response", err)
	}
	return nil
}

// decodeJSON drains a successful response body into out.
func decodeJSON(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.Wrap(types.CodeUnexpectedResponse, "decode response", err)
	}
	return nil
}

// netError classifies a transport-level failure. Deadline expiry counts
// as a network error, never a silent hang.
func netError(url string, err error) *types.Error {
	var nerr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.Wrap(types.CodeNetworkError, "request timed out", err)
	case errors.As(err, &nerr) && nerr.Timeout():
		return types.Wrap(types.CodeNetworkError, "request timed out", err)
	default:
		return types.Wrap(types.CodeNetworkError, fmt.Sprintf("request to %s failed", url), err)
	}
}

// statusError maps an upstream HTTP status to a gateway error code.
// The body is read (bounded) so the message survives into last-error.
func statusError(resp *http.Response) *types.Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := fmt.Sprintf("upstream returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return types.E(types.CodeAuthenticationFailed, msg)
	case resp.StatusCode == http.StatusNotFound:
		return types.E(types.CodeInvalidModel, msg)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return types.E(types.CodeNetworkError, msg)
	default:
		return types.E(types.CodeUnexpectedResponse, msg)
	}
}

// bearer builds an Authorization header.
func bearer(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
