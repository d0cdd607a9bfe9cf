package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// pushRequest is the Loki push API request body (v1).
type pushRequest struct {
	Streams []stream `json:"streams"`
}

type stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // [timestamp_ns, line]
}

// Loki label values may not carry arbitrary characters.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// LokiRecorder pushes each event as a JSON log line to Grafana Loki.
type LokiRecorder struct {
	BaseURL    string
	Job        string
	HTTPClient *http.Client
}

// NewLokiRecorder returns a recorder pushing to baseURL (e.g. http://localhost:3100).
func NewLokiRecorder(baseURL, job string) *LokiRecorder {
	if job == "" {
		job = "enquiry-socket"
	}
	return &LokiRecorder{
		BaseURL:    baseURL,
		Job:        job,
		HTTPClient: &http.Client{Timeout: recordTimeout},
	}
}

// Record pushes e labelled with company_id and event_type.
func (l *LokiRecorder) Record(ctx context.Context, e Event) error {
	if l.BaseURL == "" {
		return fmt.Errorf("loki: base URL is empty")
	}
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ts := e.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	labels := map[string]string{"job": l.Job}
	for k, v := range map[string]string{"company_id": e.CompanyID, "event_type": string(e.Type)} {
		if s := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); s != "" {
			labels[k] = s
		}
	}
	body := pushRequest{Streams: []stream{{
		Stream: labels,
		Values: [][]string{{fmt.Sprintf("%d", ts.UnixNano()), string(line)}},
	}}}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := strings.TrimSuffix(l.BaseURL, "/") + "/loki/api/v1/push"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := l.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
