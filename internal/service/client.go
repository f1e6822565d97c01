package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"

	"github.com/CZERTAINLY/Drydock/internal/model"
)

const contentType = "application/json"

// WebhookReporter posts every report as JSON to an URL.
type WebhookReporter struct {
	requestURL *url.URL
	client     *http.Client
}

func NewWebhookReporter(webhook string) (*WebhookReporter, error) {
	parsedURL, err := url.Parse(webhook)
	if err != nil {
		return nil, err
	}
	if (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") || parsedURL.Host == "" {
		return nil, errors.New("please define the webhook url with a http(s) scheme and a host, e.g. `http://some-url.com/hook`")
	}

	return &WebhookReporter{
		requestURL: parsedURL,
		client:     &http.Client{},
	}, nil
}

func (c *WebhookReporter) Report(ctx context.Context, report model.Report) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.requestURL.String(), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err := c.decodeResponse(resp); err != nil {
		return err
	}
	slog.DebugContext(ctx, "report delivered", slog.String("job", report.Job), slog.String("id", report.ID))
	return nil
}

func (c *WebhookReporter) decodeResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
		if err == nil && mediaType == "application/problem+json" {
			var problemDetail struct {
				Detail string `json:"detail"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&problemDetail); err != nil {
				return fmt.Errorf("decoding json response failed: %w", err)
			}
			return fmt.Errorf("status code: %d, detail: %s", resp.StatusCode, problemDetail.Detail)
		}
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return err
	}
	return fmt.Errorf("unknown error, status: %d, body: %s", resp.StatusCode, string(respBody))
}
