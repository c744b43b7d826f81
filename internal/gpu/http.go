package gpu

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/switchboard-dev/switchboard/internal/types"
)

func (c *Client) postJSON(ctx context.Context, url string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.Wrap(types.CodeUnexpectedResponse, "encode gpu request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, types.Wrap(types.CodeProviderUnavailable, "build gpu request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, types.Wrap(types.CodeProviderUnavailable, "gpu server unreachable", err)
	}
	return resp, nil
}

func decodeBody(resp *http.Response, out any) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.Wrap(types.CodeUnexpectedResponse, "decode gpu response", err)
	}
	return nil
}
