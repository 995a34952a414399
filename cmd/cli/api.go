package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/and161185/gatekeeper/internal/dto"
)

// apiError is a non-2xx response decoded from the server's error body.
type apiError struct {
	Status int
	Body   dto.Error
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("http %d: %s", e.Status, e.Body.Error)
	if e.Body.Description != "" {
		msg += ": " + e.Body.Description
	}
	if e.Body.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %ds)", e.Body.RetryAfter)
	}
	return msg
}

type apiClient struct {
	base   string
	hc     *http.Client
	bearer string
}

func newAPIClient(base string, tlsCfg *tls.Config) *apiClient {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if tlsCfg != nil {
		tr.TLSClientConfig = tlsCfg
	}
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Transport: tr, Timeout: 15 * time.Second},
	}
}

func (c *apiClient) send(req *http.Request, out any) error {
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		ae := &apiError{Status: resp.StatusCode}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(b, &ae.Body) != nil || ae.Body.Error == "" {
			ae.Body.Error = strings.TrimSpace(string(b))
		}
		return ae
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// doJSON sends body (if any) as JSON and decodes the response into out.
func (c *apiClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

// postForm sends an OAuth form; credentials go in the body, never the URL.
func (c *apiClient) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.send(req, out)
}
