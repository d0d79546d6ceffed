package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/thermolink/internal/api"
	"github.com/and161185/thermolink/internal/model"
)

// apiError is a non-2xx response from the server.
type apiError struct {
	Status  int
	Reason  string
	Message string
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Reason, e.Message)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Reason)
}

// client talks to the /api/v1 HTTP surface.
type client struct {
	base   string
	http   *http.Client
	bearer string
}

func httpClient(caPath string, insecure bool) (*http.Client, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	switch {
	case insecure:
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // dev flag
	case caPath != "":
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("bad CA cert")
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: pool}
	}
	return &http.Client{Transport: tr}, nil
}

func newClient(base string, hc *http.Client) *client {
	return &client{base: strings.TrimRight(base, "/"), http: hc}
}

func (c *client) withBearer(tok string) *client {
	cp := *c
	cp.bearer = tok
	return &cp
}

func (c *client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode/100 != 2 {
		e := &apiError{Status: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)}
		var body api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Error != "" {
			e.Reason, e.Message = body.Error, body.Message
		}
		return e
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	ct := ""
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body, ct = strings.NewReader(string(raw)), "application/json"
	}
	return c.do(ctx, method, path, body, ct, out)
}

func (c *client) challenge(ctx context.Context, id uuid.UUID) (api.ChallengeResponse, error) {
	var out api.ChallengeResponse
	err := c.doJSON(ctx, http.MethodGet, "/auth/device/challenge/"+id.String(), nil, &out)
	return out, err
}

func (c *client) deviceLogin(ctx context.Context, id uuid.UUID, signature string) (api.TokenResponse, error) {
	var out api.TokenResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/device/login", api.DeviceLoginRequest{DeviceID: id, Signature: signature}, &out)
	return out, err
}

func (c *client) userLogin(ctx context.Context, email, password string) (api.TokenResponse, error) {
	form := url.Values{"username": {email}, "password": {password}}
	var out api.TokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/user/login", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &out)
	return out, err
}

func (c *client) schedule(ctx context.Context) (*model.Schedule, error) {
	var out *model.Schedule
	err := c.doJSON(ctx, http.MethodGet, "/device/schedule", nil, &out)
	var ae *apiError
	if errors.As(err, &ae) && ae.Status == http.StatusNotFound {
		return nil, nil
	}
	return out, err
}

func (c *client) postReport(ctx context.Context, r api.Report) (api.Report, error) {
	var out api.Report
	err := c.doJSON(ctx, http.MethodPost, "/device/report", r, &out)
	return out, err
}

// stream follows the SSE endpoint and calls fn for each complete event
// until ctx ends, the server closes the stream or fn returns an error.
func (c *client) stream(ctx context.Context, deviceID uuid.UUID, fn func(event, data string) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/user/device/"+deviceID.String()+"/reports/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.bearer)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeResponse(resp, nil)
	}
	err = readSSE(resp.Body, fn)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// readSSE parses event/data lines; comments (keep-alives) are skipped.
func readSSE(r io.Reader, fn func(event, data string) error) error {
	sc := bufio.NewScanner(r)
	var event string
	var data []string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				if err := fn(event, strings.Join(data, "\n")); err != nil {
					return err
				}
			}
			event, data = "", nil
		case strings.HasPrefix(line, ":"):
			// keep-alive
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return sc.Err()
}

// tokenExpiry reads exp without verifying the signature. A token without a
// readable exp is treated as already expired so it is never reused.
func tokenExpiry(raw string, now time.Time) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return now
}
