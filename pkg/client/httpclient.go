package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type HttpClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewHttpClient(baseURL string) *HttpClient {
	return &HttpClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type Response struct {
	*http.Response
	Body []byte
}

func (r *Response) DecodeJSON(target any) error {
	return json.Unmarshal(r.Body, target)
}

func (c *HttpClient) GET(path string) (*Response, error) {
	return c.request(context.Background(), http.MethodGet, path, nil, nil)
}

func (c *HttpClient) GETWithHeaders(path string, headers map[string]string) (*Response, error) {
	return c.request(context.Background(), http.MethodGet, path, nil, headers)
}

func (c *HttpClient) POST(path string, body any) (*Response, error) {
	return c.request(context.Background(), http.MethodPost, path, body, nil)
}

func (c *HttpClient) POSTWithHeaders(path string, body any, headers map[string]string) (*Response, error) {
	return c.request(context.Background(), http.MethodPost, path, body, headers)
}

// POSTContext sends body as JSON and honours ctx cancellation.
func (c *HttpClient) POSTContext(ctx context.Context, path string, body any, headers map[string]string) (*Response, error) {
	return c.request(ctx, http.MethodPost, path, body, headers)
}

func (c *HttpClient) POSTRaw(path string, rawBody []byte) (*Response, error) {
	return c.requestRaw(context.Background(), http.MethodPost, path, rawBody, nil)
}

func (c *HttpClient) request(ctx context.Context, method, path string, body any, headers map[string]string) (*Response, error) {
	var reqBody io.Reader

	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	return c.do(ctx, method, path, reqBody, body != nil, headers)
}

func (c *HttpClient) requestRaw(ctx context.Context, method, path string, rawBody []byte, headers map[string]string) (*Response, error) {
	var reqBody io.Reader
	if rawBody != nil {
		reqBody = bytes.NewBuffer(rawBody)
	}
	return c.do(ctx, method, path, reqBody, rawBody != nil, headers)
}

func (c *HttpClient) do(ctx context.Context, method, path string, reqBody io.Reader, hasBody bool, headers map[string]string) (*Response, error) {
	url := c.BaseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		Response: resp,
		Body:     respBody,
	}, nil
}

// WaitForHealthy polls /ready, which only answers 200 once the record
// store and lock store both respond.
func (c *HttpClient) WaitForHealthy(maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastStatus int
	for time.Now().Before(deadline) {
		resp, err := c.HTTPClient.Get(c.BaseURL + "/ready")
		if err == nil {
			lastStatus = resp.StatusCode
			resp.Body.Close()
			if lastStatus == http.StatusOK {
				return nil
			}
		}
		<-ticker.C
	}

	return fmt.Errorf("service did not become ready within %v (last status %d)", maxWait, lastStatus)
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

// ErrorCode returns the API error code and whether the caller may retry.
func ErrorCode(resp *Response) (string, bool) {
	var body errorBody
	if err := resp.DecodeJSON(&body); err != nil {
		return "", false
	}
	return body.Code, body.Retryable
}

// GetErrorMessage extracts a readable message from an error response. Bodies
// that are not JSON are returned raw, truncated.
func GetErrorMessage(resp *Response) string {
	var body errorBody
	if err := resp.DecodeJSON(&body); err != nil {
		const maxRaw = 256
		raw := string(resp.Body)
		if len(raw) > maxRaw {
			raw = raw[:maxRaw] + "..."
		}
		return raw
	}

	switch {
	case body.Message != "":
		return body.Message
	case body.Error != "":
		return body.Error
	default:
		return body.Code
	}
}
