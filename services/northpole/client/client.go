package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/services/northpole/api"
)

// Client talks to a northpole serve instance. Server errors come back as kerrors carrying the server's type and code.
type Client struct {
	baseUrl    string
	httpClient *http.Client
}

func NewClient(baseUrl string, timeoutMs int) *Client {
	return &Client{
		baseUrl:    strings.TrimSuffix(baseUrl, "/"),
		httpClient: &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
	}
}

func (c *Client) call(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return kerror.Wrap(err, "EncodingError", "failed to encode request", false).WithErrorCode(kerror.EC_INVALID_PARAMETER)
		}
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseUrl+path, reader)
	if err != nil {
		return kerror.Wrap(err, "InvalidRequest", "failed to build request", false).WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return kerror.Wrap(err, "RequestFailed", "north pole unreachable", false).
			With("path", path).
			WithErrorCode(kerror.EC_NETWORK_ERR)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error == "" {
			return kerror.Create("UnexpectedStatus", resp.Status).
				With("path", path).
				With("status", resp.StatusCode).
				WithErrorCode(kerror.EC_UNKNOWN)
		}
		return kerror.Create(errResp.Error, errResp.Msg).
			With("path", path).
			WithErrorCode(kerror.ErrorCode(errResp.Code))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return kerror.Wrap(err, "DecodingError", "failed to decode response", false).
			With("path", path).
			WithErrorCode(kerror.EC_INTERNAL_ERROR)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) (string, error) {
	var resp string
	err := c.call(ctx, http.MethodGet, "/api/ping", nil, &resp)
	return resp, err
}

func (c *Client) GetStatus(ctx context.Context) (*api.StatusJson, error) {
	resp := &api.StatusJson{}
	if err := c.call(ctx, http.MethodGet, "/api/status", nil, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetSpeeds(ctx context.Context) (*api.SpeedsVm, error) {
	resp := &api.SpeedsVm{}
	if err := c.call(ctx, http.MethodGet, "/api/speeds", nil, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) SetSpeeds(ctx context.Context, speeds *api.SpeedsVm) error {
	return c.call(ctx, http.MethodPost, "/api/speeds", speeds, nil)
}

// Dispatch: empty class lets the coordinator pick.
func (c *Client) Dispatch(ctx context.Context, class string) (*api.DispatchResponse, error) {
	resp := &api.DispatchResponse{}
	path := "/api/dispatch"
	if class != "" {
		path += "?class=" + url.QueryEscape(class)
	}
	if err := c.call(ctx, http.MethodPost, path, nil, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Release(ctx context.Context) (*api.ReleaseResponse, error) {
	resp := &api.ReleaseResponse{}
	if err := c.call(ctx, http.MethodPost, "/api/release", nil, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Reset(ctx context.Context) (*api.ResetResponse, error) {
	resp := &api.ResetResponse{}
	if err := c.call(ctx, http.MethodPost, "/api/reset", nil, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetWorker(ctx context.Context, id string) (*api.WorkerVm, error) {
	resp := &api.WorkerVm{}
	if err := c.call(ctx, http.MethodGet, "/api/worker?id="+url.QueryEscape(id), nil, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
