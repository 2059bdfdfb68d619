// Package workflow talks to the external workflow engine: it submits units of
// work, polls them to completion, and normalizes the engine's inconsistent
// output shapes into a single outcome type.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/atlas-civic/budget-tracker/internal/common"
)

// Client submits work to the engine and fetches workflow state. It is safe
// for concurrent use across independent workflow ids.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 45 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		log:     logger,
	}
}

// Submit starts the named workflow with the given JSON payload and returns
// the engine's workflow id. The engine answers submissions with a text/plain
// body holding the id.
func (c *Client) Submit(ctx context.Context, workflowName, token string, payload any) (string, error) {
	bs, err := json.Marshal(payload)
	if err != nil {
		return "", common.NewAppError("SUBMIT_ENCODE", "encode payload", err)
	}

	url := fmt.Sprintf("%s/api/workflow/%s?priority=0", c.baseURL, workflowName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return "", common.NewAppError("SUBMIT_BUILD", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("X-Authorization", token)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("workflow.submit.send_error", "workflow", workflowName, "error", err)
		return "", common.NewAppError("SUBMIT_SEND", "submit workflow", common.WrapError(common.ErrSubmission, err.Error()))
	}
	defer c.closeBody(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		c.log.Error("workflow.submit.bad_status",
			"workflow", workflowName,
			"status", resp.StatusCode,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", common.NewAppError("SUBMIT_STATUS",
			fmt.Sprintf("submission failed with status %d", resp.StatusCode), common.ErrSubmission)
	}

	id := strings.TrimSpace(string(raw))
	if id == "" {
		return "", common.NewAppError("SUBMIT_EMPTY", "engine returned empty workflow id", common.ErrSubmission)
	}
	c.log.Info("workflow.submit.ok",
		"workflow", workflowName,
		"workflow_id", id,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return id, nil
}

// Poll fetches the current workflow state. The body is decoded as generic
// JSON and returned unmodified; interpretation is the Interpreter's job.
func (c *Client) Poll(ctx context.Context, workflowID, token string) (map[string]any, error) {
	url := fmt.Sprintf("%s/api/workflow/%s", c.baseURL, workflowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, common.NewAppError("POLL_BUILD", "build request", err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("X-Authorization", token)

	resp, err := c.http.Do(req)
	if err != nil {
		// a deadline that expires mid-request is a timeout, not a broken engine
		if ctx.Err() != nil {
			c.log.Warn("workflow.poll.cancelled", "workflow_id", workflowID, "error", err)
			return nil, common.NewAppError("POLL_TIMEOUT", "poll cancelled", common.WrapError(common.ErrPollTimeout, err.Error()))
		}
		c.log.Error("workflow.poll.send_error", "workflow_id", workflowID, "error", err)
		return nil, common.NewAppError("POLL_SEND", "poll workflow", common.WrapError(common.ErrPollTransport, err.Error()))
	}
	defer c.closeBody(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		c.log.Error("workflow.poll.bad_status", "workflow_id", workflowID, "status", resp.StatusCode)
		return nil, common.NewAppError("POLL_STATUS",
			fmt.Sprintf("workflow fetch failed with status %d", resp.StatusCode), common.ErrPollTransport)
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, common.NewAppError("POLL_DECODE", "decode workflow state", common.WrapError(common.ErrPollTransport, err.Error()))
	}
	return parsed, nil
}

func (c *Client) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.log.Warn("workflow.response_body_close_error", "error", err)
	}
}
