package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	v1 "github.com/aevon-lab/matview/internal/api/v1"
	"github.com/juju/clock"
	"github.com/juju/retry"
)

// ErrDuplicate is returned when the service already holds the record.
var ErrDuplicate = errors.New("record already ingested")

type retryableError struct {
	status int
	body   string
}

func (e *retryableError) Error() string {
	return fmt.Sprintf("ingestion returned %d: %s", e.status, e.body)
}

// Client posts cart actions to POST /v1/records.
type Client struct {
	baseURL  string
	http     *http.Client
	attempts int
	delay    time.Duration
	clock    clock.Clock
}

// NewClient returns a client for the service at baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		attempts: 3,
		delay:    200 * time.Millisecond,
		clock:    clock.WallClock,
	}
}

type recordRequest struct {
	SourceKey  string                 `json:"source_key"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload"`
}

// Send posts one action. 5xx responses and transport errors are retried.
func (c *Client) Send(ctx context.Context, action v1.CartAction) error {
	body, err := json.Marshal(recordRequest{
		SourceKey:  action.ID,
		OccurredAt: c.clock.Now().UTC(),
		Payload:    action.Payload(),
	})
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	return retry.Call(retry.CallArgs{
		Func: func() error {
			return c.post(ctx, body)
		},
		IsFatalError: func(err error) bool {
			var re *retryableError
			return !errors.As(err, &re)
		},
		Attempts:    c.attempts,
		Delay:       c.delay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       c.clock,
		Stop:        ctx.Done(),
	})
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/records", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &retryableError{body: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return nil
	case resp.StatusCode == http.StatusConflict:
		return ErrDuplicate
	case resp.StatusCode >= 500:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &retryableError{status: resp.StatusCode, body: string(msg)}
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ingestion rejected record (%d): %s", resp.StatusCode, msg)
	}
}

// Stats summarizes a Run.
type Stats struct {
	Carts      int
	Sent       int
	Duplicates int
	Failed     int
}

// Run sends carts funnels until count carts were produced (0 means unbounded)
// or ctx is cancelled, pausing interval between carts.
func Run(ctx context.Context, g *Generator, c *Client, count int, interval time.Duration) Stats {
	var stats Stats
	for count == 0 || stats.Carts < count {
		if ctx.Err() != nil {
			break
		}
		for _, action := range g.Next() {
			err := c.Send(ctx, action)
			switch {
			case err == nil:
				stats.Sent++
			case errors.Is(err, ErrDuplicate):
				stats.Duplicates++
			default:
				stats.Failed++
				slog.Warn("[CartGen] Failed to send action",
					"id", action.ID, "action", action.Action, "error", err)
			}
		}
		stats.Carts++

		if interval > 0 {
			select {
			case <-ctx.Done():
			case <-c.clock.After(interval):
			}
		}
	}
	return stats
}
