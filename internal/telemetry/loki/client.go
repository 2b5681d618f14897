// Package loki pushes telemetry events to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"userbot-connect/internal/telemetry/domain"
)

// DefaultJob is the job label attached to every pushed stream.
const DefaultJob = "userbot-connect"

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // [timestamp_ns, line]
}

var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// Client pushes log lines to one Loki instance.
type Client struct {
	baseURL string
	job     string
	http    *http.Client
}

// NewClient returns a client for baseURL (e.g. http://localhost:3100).
func NewClient(baseURL string) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("loki: base URL is empty")
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		job:     DefaultJob,
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// PushEventJSON pushes a raw event payload (a Kafka message value). Labels and
// timestamp come from the payload; if it does not parse, the raw line is pushed
// at the current time.
func (c *Client) PushEventJSON(ctx context.Context, raw []byte) error {
	var ev domain.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return c.Push(ctx, time.Now().UTC(), string(raw), nil)
	}
	ts := ev.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return c.Push(ctx, ts, string(raw), eventLabels(&ev))
}

// Emit implements telemetry.EventEmitter by pushing the event directly.
func (c *Client) Emit(ctx context.Context, event *domain.Event) error {
	if c == nil || event == nil {
		return nil
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return c.Push(ctx, event.CreatedAt, string(raw), eventLabels(event))
}

// Push sends a single log line. Returns an error if the request fails or Loki
// answers non-2xx.
func (c *Client) Push(ctx context.Context, timestamp time.Time, line string, labels map[string]string) error {
	body := PushRequest{
		Streams: []Stream{{
			Stream: streamLabels(c.job, labels),
			Values: [][]string{{strconv.FormatInt(timestamp.UnixNano(), 10), line}},
		}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}

// User ids are left out of labels to keep stream cardinality bounded; they stay in the line.
func eventLabels(ev *domain.Event) map[string]string {
	labels := map[string]string{}
	if ev.EventType != "" {
		labels["event_type"] = ev.EventType
	}
	if ev.Source != "" {
		labels["source"] = ev.Source
	}
	return labels
}

func streamLabels(job string, labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	out["job"] = job
	for k, v := range labels {
		if s := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); s != "" {
			out[k] = s
		}
	}
	return out
}
