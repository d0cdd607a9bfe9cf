// Package upstream talks to the CRM enquiry API and the reCAPTCHA verification endpoint.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	companydomain "enquiry-socket/internal/company/domain"
	"enquiry-socket/internal/enquiry/domain"
)

const defaultTimeout = 10 * time.Second

// DefaultCaptchaURL is Google's siteverify endpoint.
const DefaultCaptchaURL = "https://www.google.com/recaptcha/api/siteverify"

var (
	// ErrUpstreamUnavailable is returned when the CRM cannot be reached or answers with a non-2xx status.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrInvalidSchema is returned when the CRM answers 2xx with a body that is not a schema.
	ErrInvalidSchema = errors.New("upstream returned an invalid schema")
)

// Client performs the three remote calls the enquiry flow needs. It holds no per-company state.
type Client struct {
	EnquiryURL string
	CaptchaURL string
	HTTPClient *http.Client
	now        func() time.Time
}

// NewClient returns a client for the CRM enquiry endpoint. A zero timeout uses the default.
func NewClient(enquiryURL, captchaURL string, timeout time.Duration) *Client {
	if captchaURL == "" {
		captchaURL = DefaultCaptchaURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		EnquiryURL: enquiryURL,
		CaptchaURL: captchaURL,
		HTTPClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// CaptchaResult is the part of the siteverify response the pipeline acts on.
type CaptchaResult struct {
	Success  bool   `json:"success"`
	Hostname string `json:"hostname"`
}

// PostResult describes the CRM's answer to an enquiry post.
type PostResult struct {
	StatusCode int
	URL        string
	Body       string
}

// ClientError reports whether the CRM rejected the enquiry (4xx).
func (r PostResult) ClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

// OK reports a 2xx answer.
func (r PostResult) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type schemaBody struct {
	Count   int                      `json:"count"`
	Visible []domain.FieldDefinition `json:"visible"`
}

// FetchSchema retrieves the company's current enquiry form definition.
func (c *Client) FetchSchema(ctx context.Context, company *companydomain.Company) (*domain.Schema, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.EnquiryURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Token "+company.PrivateKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: status=%d url=%s body=%s", ErrUpstreamUnavailable, resp.StatusCode, c.EnquiryURL, string(b))
	}
	var body schemaBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if body.Visible == nil {
		body.Visible = []domain.FieldDefinition{}
	}
	return &domain.Schema{
		CompanyID: company.ID,
		Count:     body.Count,
		Visible:   body.Visible,
		FetchedAt: c.now().UTC(),
	}, nil
}

// VerifyCaptcha checks a reCAPTCHA response token. remoteIP is sent only when known.
func (c *Client) VerifyCaptcha(ctx context.Context, secret, response, remoteIP string) (CaptchaResult, error) {
	form := url.Values{}
	form.Set("secret", secret)
	form.Set("response", response)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.CaptchaURL, strings.NewReader(form.Encode()))
	if err != nil {
		return CaptchaResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return CaptchaResult{}, fmt.Errorf("captcha: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return CaptchaResult{}, fmt.Errorf("captcha: request failed status=%d", resp.StatusCode)
	}
	var out CaptchaResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return CaptchaResult{}, fmt.Errorf("captcha: decode response: %w", err)
	}
	return out, nil
}

// PostEnquiry sends a validated enquiry payload to the CRM. A non-nil error means no status was
// received (network failure or timeout); any HTTP status, including 4xx and 5xx, is returned in PostResult.
func (c *Client) PostEnquiry(ctx context.Context, company *companydomain.Company, payload map[string]any) (PostResult, error) {
	result := PostResult{URL: c.EnquiryURL}
	raw, err := json.Marshal(payload)
	if err != nil {
		return result, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.EnquiryURL, bytes.NewReader(raw))
	if err != nil {
		return result, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Token "+company.PrivateKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	result.StatusCode = resp.StatusCode
	if !result.OK() {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		result.Body = string(b)
	}
	return result, nil
}
