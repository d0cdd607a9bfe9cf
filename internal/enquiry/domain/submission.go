package domain

import (
	"fmt"
	"strings"
)

// Submission-level keys that are not part of the company schema.
const (
	KeyAttributes           = "attributes"
	KeyGrecaptchaResponse   = "grecaptcha_response"
	KeyTermsAndConditions   = "terms_and_conditions"
	KeyUpstreamHTTPReferrer = "upstream_http_referrer"
)

// MaxReferrerLength caps http_referrer and upstream_http_referrer; longer values are truncated.
const MaxReferrerLength = 1023

// RequestMeta is what the HTTP layer knows about the inbound request.
type RequestMeta struct {
	UserAgent string
	IPAddress string
	Referrer  string
	Origin    string
}

// Submission is a raw enquiry as posted by the public form: the decoded JSON body plus request metadata.
type Submission struct {
	Raw  map[string]any
	Meta RequestMeta
}

// ValidatedSubmission is a submission whose values have been checked and coerced against a Schema.
type ValidatedSubmission struct {
	Fields               map[string]any `json:"fields"`
	Attributes           map[string]any `json:"attributes"`
	GrecaptchaResponse   string         `json:"grecaptcha_response"`
	TermsAndConditions   bool           `json:"terms_and_conditions"`
	UpstreamHTTPReferrer *string        `json:"upstream_http_referrer,omitempty"`
	HTTPReferrer         *string        `json:"http_referrer,omitempty"`
	UserAgent            *string        `json:"user_agent,omitempty"`
	IPAddress            *string        `json:"ip_address,omitempty"`
	Origin               string         `json:"origin,omitempty"`
}

// Payload builds the JSON object posted to the CRM. Absent optional metadata is sent as null,
// except upstream_http_referrer which is omitted, and attributes which are omitted when empty.
func (v ValidatedSubmission) Payload() map[string]any {
	p := make(map[string]any, len(v.Fields)+6)
	for k, val := range v.Fields {
		p[k] = val
	}
	p["user_agent"] = nullable(v.UserAgent)
	p["ip_address"] = nullable(v.IPAddress)
	p["http_referrer"] = nullable(v.HTTPReferrer)
	p[KeyTermsAndConditions] = v.TermsAndConditions
	if v.UpstreamHTTPReferrer != nil {
		p[KeyUpstreamHTTPReferrer] = *v.UpstreamHTTPReferrer
	}
	if len(v.Attributes) > 0 {
		p[KeyAttributes] = v.Attributes
	}
	return p
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// FieldError is one validation failure, shaped like the public API's error details.
type FieldError struct {
	Loc  []string       `json:"loc"`
	Msg  string         `json:"msg"`
	Type string         `json:"type"`
	Ctx  map[string]any `json:"ctx,omitempty"`
}

// FieldErrors is an ordered list of validation failures.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fmt.Sprintf("%s: %s", strings.Join(fe.Loc, "."), fe.Msg))
	}
	return "invalid attribute data: " + strings.Join(parts, "; ")
}
