package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	HeaderSignature = "X-Pixelpress-Signature"
	HeaderTimestamp = "X-Pixelpress-Timestamp"
	HeaderEvent     = "X-Pixelpress-Event"
)

type Config struct {
	// URL receives batch events. Empty disables delivery.
	URL            string
	SigningSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Envelope is the signed JSON body of every delivery.
type Envelope struct {
	Event  string    `json:"event"`
	SentAt time.Time `json:"sent_at"`
	Data   any       `json:"data"`
}

// Client posts batch events to one endpoint, signing each body with
// HMAC-SHA256 over "<timestamp>.<body>".
type Client struct {
	url         string
	http        *http.Client
	secret      []byte
	maxAttempts uint
	initial     time.Duration
	ceiling     time.Duration
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = time.Second
	}

	return &Client{
		url:         strings.TrimSpace(cfg.URL),
		http:        &http.Client{Timeout: timeout},
		secret:      []byte(cfg.SigningSecret),
		maxAttempts: uint(max(cfg.MaxAttempts, 1)),
		initial:     initial,
		ceiling:     max(cfg.MaxBackoff, initial),
	}
}

// Enabled reports whether a delivery URL is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.url != ""
}

// Notify delivers one event. Server errors and 429 are retried with
// exponential backoff; other 4xx answers end delivery immediately.
func (c *Client) Notify(ctx context.Context, event string, data any) error {
	if !c.Enabled() {
		return nil
	}

	body, err := json.Marshal(Envelope{Event: event, SentAt: time.Now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}

	timestamp := strconv.FormatInt(time.Now().UTC().Unix(), 10)
	signature := c.sign(timestamp, body)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initial
	policy.MaxInterval = c.ceiling
	policy.RandomizationFactor = 0.2

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.post(ctx, event, timestamp, signature, body)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(c.maxAttempts))
	if err != nil {
		return fmt.Errorf("deliver %s event: %w", event, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, event, timestamp, signature string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderEvent, event)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned status=%d", resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("webhook returned status=%d", resp.StatusCode))
	}
}

func (c *Client) sign(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(timestamp + "."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
