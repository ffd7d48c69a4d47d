package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joseph-ayodele/pagescribe/internal/common"
	"github.com/joseph-ayodele/pagescribe/internal/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.BaseURL = baseURL
	cfg.RetryDelay = time.Millisecond
	c, err := NewClient(cfg, discardLogger())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func writePage(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("RIFF0000WEBPfake"), 0o644); err != nil {
		t.Fatalf("write page: %v", err)
	}
	return p
}

func captureLogger(level slog.Level) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level})), &buf
}

// logEvents decodes JSON log lines and groups them by message.
func logEvents(t *testing.T, buf *bytes.Buffer) map[string][]map[string]any {
	t.Helper()
	out := make(map[string][]map[string]any)
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("log line is not JSON: %v: %s", err, line)
		}
		msg, _ := rec["msg"].(string)
		out[msg] = append(out[msg], rec)
	}
	return out
}

// tinyWebP is a lossless 3x2 image header; enough for DecodeConfig.
var tinyWebP = []byte{
	'R', 'I', 'F', 'F', 0x12, 0x00, 0x00, 0x00, 'W', 'E', 'B', 'P',
	'V', 'P', '8', 'L', 0x05, 0x00, 0x00, 0x00,
	0x2f, 0x02, 0x40, 0x00, 0x00, 0x00,
}

func successBody(texts ...string) string {
	type block struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	out := struct {
		Content []block   `json:"content"`
		Usage   llm.Usage `json:"usage"`
	}{Usage: llm.Usage{InputTokens: 10, OutputTokens: 5}}
	for _, s := range texts {
		out.Content = append(out.Content, block{Type: "text", Text: s})
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{}, discardLogger())
	if !common.IsKind(err, common.KindConfig) {
		t.Fatalf("NewClient() error = %v, want config error", err)
	}
	if !errors.Is(err, common.ErrMissingAPIKey) {
		t.Fatalf("NewClient() error = %v, want ErrMissingAPIKey", err)
	}
}

func TestExtractPageRequestShape(t *testing.T) {
	dir := t.TempDir()
	page := writePage(t, dir, "page-3.webp")

	var got messagesRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		headers = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("anthropic-ratelimit-requests-remaining", "49")
		_, _ = io.WriteString(w, successBody("ignored", "Hello</page>"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	out, err := c.ExtractPage(context.Background(), llm.PageRequest{Path: page, PageIndex: "3"})
	if err != nil {
		t.Fatalf("ExtractPage() error = %v", err)
	}
	if want := `<page number="3">Hello</page>`; out != want {
		t.Fatalf("ExtractPage() = %q, want %q", out, want)
	}

	if headers.Get("x-api-key") != "test-key" {
		t.Errorf("x-api-key = %q", headers.Get("x-api-key"))
	}
	if headers.Get("anthropic-version") != "2023-06-01" {
		t.Errorf("anthropic-version = %q", headers.Get("anthropic-version"))
	}
	if headers.Get("content-type") != "application/json" {
		t.Errorf("content-type = %q", headers.Get("content-type"))
	}

	if got.Model != "claude-3-5-sonnet-20240620" || got.MaxTokens != 4096 {
		t.Errorf("model/max_tokens = %q/%d", got.Model, got.MaxTokens)
	}
	if got.System != llm.SystemMessage {
		t.Errorf("system message not sent")
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "user" || got.Messages[1].Role != "assistant" {
		t.Fatalf("messages = %+v", got.Messages)
	}

	userBlocks, ok := got.Messages[0].Content.([]any)
	if !ok || len(userBlocks) != 3 {
		t.Fatalf("user content = %#v", got.Messages[0].Content)
	}
	image := userBlocks[1].(map[string]any)
	source := image["source"].(map[string]any)
	if image["type"] != "image" || source["media_type"] != "image/webp" || source["type"] != "base64" {
		t.Errorf("image block = %#v", image)
	}
	if source["data"] == "" {
		t.Errorf("image data is empty")
	}
	if text := userBlocks[0].(map[string]any)["text"].(string); !strings.Contains(text, "page 3") {
		t.Errorf("preamble = %q, want page number", text)
	}

	seed := got.Messages[1].Content.([]any)[0].(map[string]any)
	if seed["text"] != `<page number="3">` {
		t.Errorf("assistant seed = %#v", seed)
	}
}

func TestExtractPageRetriesOverload(t *testing.T) {
	testCases := []struct {
		name         string
		failures     int32
		wantAttempts int32
		wantErr      common.Kind
	}{
		{"AlwaysOverloaded", 1000, 6, common.KindOverload},
		{"RecoversOnLastAttempt", 5, 6, ""},
		{"RecoversEarly", 2, 3, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			page := writePage(t, t.TempDir(), "page-1.webp")
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				if n <= tc.failures {
					w.WriteHeader(statusOverloaded)
					_, _ = io.WriteString(w, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
					return
				}
				_, _ = io.WriteString(w, successBody("ok</page>"))
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL)
			_, err := c.ExtractPage(context.Background(), llm.PageRequest{Path: page, PageIndex: "1"})

			if got := calls.Load(); got != tc.wantAttempts {
				t.Errorf("attempts = %d, want %d", got, tc.wantAttempts)
			}
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("ExtractPage() error = %v", err)
				}
				return
			}
			if !common.IsKind(err, tc.wantErr) {
				t.Fatalf("ExtractPage() error = %v, want kind %s", err, tc.wantErr)
			}
			var perr *llm.ProviderError
			if !errors.As(err, &perr) || perr.Type != "overloaded_error" {
				t.Fatalf("ExtractPage() error = %v, want overloaded_error payload", err)
			}
		})
	}
}

func TestExtractPageTerminalStatus(t *testing.T) {
	page := writePage(t, t.TempDir(), "page-1.webp")
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens: too large"}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.ExtractPage(context.Background(), llm.PageRequest{Path: page, PageIndex: "1"})
	if calls.Load() != 1 {
		t.Errorf("attempts = %d, want 1", calls.Load())
	}
	if !common.IsKind(err, common.KindTransport) {
		t.Fatalf("ExtractPage() error = %v, want transport error", err)
	}
	var perr *llm.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("ExtractPage() error = %v, want ProviderError", err)
	}
	if perr.Status != http.StatusBadRequest || perr.Type != "invalid_request_error" || perr.Message != "max_tokens: too large" {
		t.Errorf("ProviderError = %+v", perr)
	}
	if !strings.Contains(err.Error(), "invalid_request_error") || !strings.Contains(err.Error(), "max_tokens: too large") {
		t.Errorf("error text = %q, want type and message", err.Error())
	}
}

func TestExtractPageEmptyContent(t *testing.T) {
	page := writePage(t, t.TempDir(), "page-1.webp")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"content":[],"usage":{"input_tokens":1,"output_tokens":0}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.ExtractPage(context.Background(), llm.PageRequest{Path: page, PageIndex: "1"})
	if !common.IsKind(err, common.KindFormat) {
		t.Fatalf("ExtractPage() error = %v, want format error", err)
	}
}

func TestExtractPageMissingImage(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.ExtractPage(context.Background(), llm.PageRequest{Path: filepath.Join(t.TempDir(), "page-9.webp"), PageIndex: "9"})
	if !common.IsKind(err, common.KindFilesystem) {
		t.Fatalf("ExtractPage() error = %v, want filesystem error", err)
	}
}

func TestExtractPageRetryHonoursCancel(t *testing.T) {
	page := writePage(t, t.TempDir(), "page-1.webp")
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		w.WriteHeader(statusOverloaded)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.APIKey = "k"
	cfg.BaseURL = srv.URL
	cfg.RetryDelay = time.Hour
	c, err := NewClient(cfg, discardLogger())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = c.ExtractPage(ctx, llm.PageRequest{Path: page, PageIndex: "1"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ExtractPage() error = %v, want context.Canceled", err)
	}
}

func TestNameDocumentSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	var got messagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		w.WriteHeader(statusOverloaded)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.NameDocument(context.Background(), "<document><page number=\"1\">x</page></document>")
	if calls.Load() != 1 {
		t.Errorf("attempts = %d, want 1", calls.Load())
	}
	if !common.IsKind(err, common.KindTransport) {
		t.Fatalf("NameDocument() error = %v, want transport error", err)
	}
	prompt, ok := got.Messages[0].Content.(string)
	if !ok || !strings.Contains(prompt, `<page number="1">x</page>`) || strings.Contains(prompt, "{XML}") {
		t.Errorf("naming prompt = %#v", got.Messages[0].Content)
	}
}

func TestNameDocumentReturnsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, successBody("<file_name>Invoice</file_name>"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	out, err := c.NameDocument(context.Background(), "<document></document>")
	if err != nil {
		t.Fatalf("NameDocument() error = %v", err)
	}
	if out != "<file_name>Invoice</file_name>" {
		t.Fatalf("NameDocument() = %q", out)
	}
}

func TestExtractPageConnectionDropIsTerminal(t *testing.T) {
	page := writePage(t, t.TempDir(), "page-1.webp")
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("response writer cannot hijack")
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		_ = conn.Close()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.ExtractPage(context.Background(), llm.PageRequest{Path: page, PageIndex: "1"})
	if got := calls.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
	if !common.IsKind(err, common.KindTransport) {
		t.Fatalf("ExtractPage() error = %v, want transport error", err)
	}
}

func TestExtractPageUnreachableHost(t *testing.T) {
	page := writePage(t, t.TempDir(), "page-1.webp")
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)
	_, err := c.ExtractPage(context.Background(), llm.PageRequest{Path: page, PageIndex: "1"})
	if !common.IsKind(err, common.KindTransport) {
		t.Fatalf("ExtractPage() error = %v, want transport error", err)
	}
}

func TestExtractPageLogsRateLimitsAndUsage(t *testing.T) {
	dir := t.TempDir()
	page := filepath.Join(dir, "page-4.webp")
	if err := os.WriteFile(page, tinyWebP, 0o644); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("anthropic-ratelimit-requests-remaining", "49")
		w.Header().Set("anthropic-ratelimit-tokens-remaining", "39000")
		w.Header().Set("retry-after", "7")
		_, _ = io.WriteString(w, successBody("ok</page>"))
	}))
	defer srv.Close()

	logger, buf := captureLogger(slog.LevelDebug)
	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.BaseURL = srv.URL
	c, err := NewClient(cfg, logger)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	ctx := common.WithRequestID(common.WithStem(context.Background(), "document_page_4"), "run-42")
	if _, err := c.ExtractPage(ctx, llm.PageRequest{Path: page, PageIndex: "4"}); err != nil {
		t.Fatalf("ExtractPage() error = %v", err)
	}
	events := logEvents(t, buf)

	rl := events["llm.http.ratelimit"]
	if len(rl) != 1 {
		t.Fatalf("ratelimit events = %d, want 1", len(rl))
	}
	for k, want := range map[string]string{
		"anthropic-ratelimit-requests-remaining": "49",
		"anthropic-ratelimit-tokens-remaining":   "39000",
		"retry-after":                            "7",
	} {
		if rl[0][k] != want {
			t.Errorf("ratelimit[%s] = %v, want %s", k, rl[0][k], want)
		}
	}

	usage := events["llm.response.usage"]
	if len(usage) != 1 {
		t.Fatalf("usage events = %d, want 1", len(usage))
	}
	if usage[0]["input_tokens"] != float64(10) || usage[0]["output_tokens"] != float64(5) {
		t.Errorf("usage = %v", usage[0])
	}

	for _, ev := range []string{"llm.extract_page.start", "llm.extract_page.ok"} {
		got := events[ev]
		if len(got) != 1 || got[0]["run_id"] != "run-42" || got[0]["stem"] != "document_page_4" {
			t.Errorf("%s = %v, want run_id and stem from context", ev, got)
		}
	}

	img := events["llm.extract_page.image"]
	if len(img) != 1 || img[0]["width"] != float64(3) || img[0]["height"] != float64(2) {
		t.Errorf("image probe = %v, want 3x2", img)
	}
	if len(events["llm.extract_page.image_probe_failed"]) != 0 {
		t.Errorf("probe failed on a valid webp")
	}
}
