// Package gateway talks to the serverless functions that proxy the
// electronic-signature and mobile-money providers.
package gateway

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rongwang/leasehub-server/internal/config"
	ierr "github.com/rongwang/leasehub-server/internal/errors"
	"go.uber.org/zap"
)

// envelope is the response shape every provider function returns
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// client is the JSON transport shared by the provider adapters
type client struct {
	baseURL string
	apiKey  string
	http    *retryablehttp.Client
	logger  *zap.Logger
}

func newClient(cfg config.ProviderConfig, logger *zap.Logger) *client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = leveledLogger{logger.Sugar()}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rc.HTTPClient.Timeout = timeout

	return &client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    rc,
		logger:  logger,
	}
}

// do sends body as JSON and decodes the envelope's data into out.
// A provider-reported failure (success=false) is returned as an error.
func (c *client) do(ctx context.Context, method, path string, headers map[string]string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return ierr.WithError(err).
				WithHint("Please check the request payload").
				Mark(ierr.ErrValidation)
		}
	}

	var reqBody interface{}
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrHTTPClient)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ierr.WithError(err).
			WithHint("The provider could not be reached").
			Mark(ierr.ErrHTTPClient)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ierr.WithError(err).
			WithHint("The provider response could not be read").
			Mark(ierr.ErrHTTPClient)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ierr.NewErrorf("provider returned status %d with an unreadable body", resp.StatusCode).
			WithHint("The provider returned an invalid response").
			Mark(ierr.ErrHTTPClient)
	}

	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return ierr.NewErrorf("%s %s: provider error (status %d): %s", method, path, resp.StatusCode, msg).
			WithHint(msg).
			Mark(ierr.ErrHTTPClient)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return ierr.WithError(err).
				WithHint("The provider returned an invalid response").
				Mark(ierr.ErrHTTPClient)
		}
	}

	return nil
}

// idempotencyKey derives a stable key from a scope and request parameters so
// that retried initiation calls are recognized by the provider
func idempotencyKey(scope string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(scope)
	for _, k := range keys {
		b.WriteString(fmt.Sprintf(":%s=%s", k, params[k]))
	}

	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s-%s", scope, hex.EncodeToString(hash[:8]))
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger
type leveledLogger struct {
	l *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.l.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.l.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.l.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.l.Warnw(msg, keysAndValues...)
}
