package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/image/webp"

	"github.com/joseph-ayodele/pagescribe/constants"
	"github.com/joseph-ayodele/pagescribe/internal/common"
	"github.com/joseph-ayodele/pagescribe/internal/llm"
)

const statusOverloaded = 529

var rateLimitHeaders = []string{
	"anthropic-ratelimit-requests-limit",
	"anthropic-ratelimit-requests-remaining",
	"anthropic-ratelimit-requests-reset",
	"anthropic-ratelimit-tokens-limit",
	"anthropic-ratelimit-tokens-remaining",
	"anthropic-ratelimit-tokens-reset",
	"retry-after",
}

var (
	_ llm.PageExtractor = (*Client)(nil)
	_ llm.Namer         = (*Client)(nil)
)

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

// message content is either a plain string or a list of blocks.
type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messagesResponse struct {
	ID         string `json:"id"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage llm.Usage `json:"usage"`
}

type errorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ExtractPage implements llm.PageExtractor. HTTP 529 responses are retried
// up to MaxRetries times with a fixed delay; every other failure is returned at once.
func (c *Client) ExtractPage(ctx context.Context, req llm.PageRequest) (string, error) {
	start := time.Now()
	prefill := llm.PageOpenTag(req.PageIndex)

	log := c.logger.With(
		"run_id", common.RequestIDFromContext(ctx),
		"stem", common.StemFromContext(ctx),
	)
	log.Info("llm.extract_page.start",
		"page", req.PageIndex,
		"path", req.Path,
		"model", c.cfg.Model,
	)

	c.probeImage(req)

	data, size, err := llm.ReadImageBase64(req.Path)
	if err != nil {
		log.Error("llm.extract_page.read_error", "page", req.PageIndex, "error", err)
		return "", common.FilesystemError("read page image", err)
	}

	body := messagesRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		System:    llm.SystemMessage,
		Messages: []message{
			{
				Role: "user",
				Content: []contentBlock{
					{Type: "text", Text: llm.PagePreamble(req.PageIndex)},
					{Type: "image", Source: &imageSource{
						Type:      "base64",
						MediaType: constants.PageImageMediaType,
						Data:      data,
					}},
					{Type: "text", Text: llm.PageSuffix(req.PageIndex)},
				},
			},
			{
				Role:    "assistant",
				Content: []contentBlock{{Type: "text", Text: prefill}},
			},
		},
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.send(ctx, body)
		if err != nil {
			return "", err
		}
		if resp.Status == statusOverloaded {
			if attempt < c.cfg.MaxRetries {
				log.Warn("llm.extract_page.overloaded",
					"req_id", resp.RequestID,
					"page", req.PageIndex,
					"attempt", attempt+1,
					"retry_in_ms", c.cfg.RetryDelay.Milliseconds(),
				)
				if err := sleepCtx(ctx, c.cfg.RetryDelay); err != nil {
					return "", common.TransportError("wait before retry", err)
				}
				continue
			}
			log.Error("llm.extract_page.overload_exhausted",
				"req_id", resp.RequestID,
				"page", req.PageIndex,
				"attempts", attempt+1,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return "", common.OverloadError(
				fmt.Sprintf("provider overloaded after %d attempts", attempt+1),
				c.decodeError(resp))
		}

		text, err := c.handle(resp, prefill)
		if err != nil {
			return "", err
		}
		log.Info("llm.extract_page.ok",
			"req_id", resp.RequestID,
			"page", req.PageIndex,
			"image_bytes", size,
			"attempts", attempt+1,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return text, nil
	}
}

// NameDocument implements llm.Namer with a single attempt.
func (c *Client) NameDocument(ctx context.Context, documentXML string) (string, error) {
	start := time.Now()
	body := messagesRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		System:    llm.SystemMessage,
		Messages: []message{
			{Role: "user", Content: llm.BuildNamingPrompt(documentXML)},
		},
	}

	resp, err := c.send(ctx, body)
	if err != nil {
		return "", err
	}
	text, err := c.handle(resp, "")
	if err != nil {
		return "", err
	}
	c.logger.Info("llm.name_document.ok",
		"req_id", resp.RequestID,
		"run_id", common.RequestIDFromContext(ctx),
		"stem", common.StemFromContext(ctx),
		"xml_len", len(documentXML),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func (c *Client) send(ctx context.Context, body messagesRequest) (*llm.Response, error) {
	headers := map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": c.cfg.Version,
		"content-type":      "application/json",
	}
	resp, err := llm.SendJSON(ctx, c.http, c.cfg.BaseURL+"/v1/messages", body, headers, c.logger)
	if err != nil {
		return nil, common.TransportError("send request", err)
	}
	c.logRateLimits(resp)
	return resp, nil
}

// handle turns a non-529 response into the answer text prefixed with prefill.
func (c *Client) handle(resp *llm.Response, prefill string) (string, error) {
	if !resp.OK() {
		perr := c.decodeError(resp)
		c.logger.Error("llm.response.error",
			"req_id", resp.RequestID,
			"status", perr.Status,
			"type", perr.Type,
			"message", perr.Message,
		)
		return "", common.TransportError("provider request failed", perr)
	}

	var out messagesResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		c.logger.Error("llm.response.decode_error", "req_id", resp.RequestID, "error", err, "raw_bytes", len(resp.Body))
		return "", common.FormatError("response is success but carries no JSON output", err)
	}
	if len(out.Content) == 0 {
		c.logger.Error("llm.response.no_content", "req_id", resp.RequestID, "stop_reason", out.StopReason)
		return "", common.FormatError("response is success but lacks content", nil)
	}

	c.logger.Info("llm.response.usage",
		"req_id", resp.RequestID,
		"input_tokens", out.Usage.InputTokens,
		"output_tokens", out.Usage.OutputTokens,
		"stop_reason", out.StopReason,
	)
	return prefill + out.Content[len(out.Content)-1].Text, nil
}

func (c *Client) decodeError(resp *llm.Response) *llm.ProviderError {
	perr := &llm.ProviderError{Status: resp.Status}
	var er errorResponse
	if err := json.Unmarshal(resp.Body, &er); err != nil || er.Error.Type == "" {
		perr.Type = http.StatusText(resp.Status)
		perr.Message = "response is not success and carries no JSON error payload"
		return perr
	}
	perr.Type = er.Error.Type
	perr.Message = er.Error.Message
	return perr
}

func (c *Client) logRateLimits(resp *llm.Response) {
	attrs := []any{"req_id", resp.RequestID, "status", resp.Status}
	for _, h := range rateLimitHeaders {
		if v := resp.Header.Get(h); v != "" {
			attrs = append(attrs, h, v)
		}
	}
	c.logger.Info("llm.http.ratelimit", attrs...)
}

// probeImage logs the decoded dimensions of the page image. It never fails the call.
func (c *Client) probeImage(req llm.PageRequest) {
	f, err := os.Open(req.Path)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()

	cfg, err := webp.DecodeConfig(f)
	if err != nil {
		c.logger.Warn("llm.extract_page.image_probe_failed",
			"page", req.PageIndex,
			"path", req.Path,
			"media_type", constants.PageImageMediaType,
			"error", err,
		)
		return
	}
	c.logger.Debug("llm.extract_page.image",
		"page", req.PageIndex,
		"width", cfg.Width,
		"height", cfg.Height,
	)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
