// Package webhook provides the outbound HTTP call action for workflow steps.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/template"
)

const defaultTimeoutSeconds = 30

// Action performs one HTTP request to a configured URL. URL, headers, and
// body support templating against the execution context. Retries are owned
// by the step executor, so a server error surfaces as a plain failure here.
type Action struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	Timeout time.Duration
}

// NewAction creates a webhook action from step configuration.
func NewAction(config map[string]any) (*Action, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, models.NewConfigurationError("url", "missing or invalid 'url' in webhook configuration")
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	body, _ := config["body"].(string)

	headers := make(map[string]string)

	if headersConfig, exists := config["headers"]; exists {
		if headersMap, ok := headersConfig.(map[string]any); ok {
			for k, v := range headersMap {
				if strVal, ok := v.(string); ok {
					headers[k] = strVal
				}
			}
		}
	}

	timeout := defaultTimeoutSeconds * time.Second
	if seconds, ok := config["timeout_seconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	return &Action{
		Method:  strings.ToUpper(method),
		URL:     url,
		Headers: headers,
		Body:    body,
		Timeout: timeout,
	}, nil
}

// Execute sends the request and returns the response as step variables.
func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "webhook_action")

	url, err := template.RenderString(a.URL, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render webhook url: %w", err)
	}

	body := ""

	if a.Body != "" {
		body, err = template.RenderString(a.Body, executionCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to render webhook body: %w", err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, a.Method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook request: %w", err)
	}

	if req.Header.Get("Content-Type") == "" && body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range a.Headers {
		rendered, err := template.RenderString(value, executionCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to render webhook header %s: %w", key, err)
		}

		req.Header.Set(key, rendered)
	}

	logger.Info("Calling webhook", "method", a.Method, "url", url)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("webhook returned server error %d", resp.StatusCode)
	}

	var respBody any
	if err := json.Unmarshal(respBytes, &respBody); err != nil {
		respBody = string(respBytes)
	}

	logger.Info("Webhook completed", "status_code", resp.StatusCode, "body_length", len(respBytes))

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        respBody,
	}, nil
}
