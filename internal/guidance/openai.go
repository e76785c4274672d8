package guidance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type OpenAIOptions struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	Fallback     Writer
	OnFallback   func(reason string, err error)
}

// OpenAIWriter asks a chat completion model for document sections and falls
// back to another Writer when the model is unreachable or answers badly.
type OpenAIWriter struct {
	apiKey       string
	model        string
	baseURL      string
	organization string
	client       *http.Client
	fallback     Writer
	onFallback   func(reason string, err error)
}

const openAIDefaultTimeout = 45 * time.Second

const defaultOpenAIModel = "gpt-4o-mini"

var openAIModelCanonical = map[string]string{
	"gpt-4o-mini": "gpt-4o-mini",
	"gpt-4o":      "gpt-4o",
	"gpt-4.1":     "gpt-4.1",
}

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewOpenAIWriter(opts OpenAIOptions) (*OpenAIWriter, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	fallback := opts.Fallback
	if fallback == nil {
		fallback = NewStaticWriter()
	}
	return &OpenAIWriter{
		apiKey:       strings.TrimSpace(opts.APIKey),
		model:        normalizeOpenAIModel(opts.Model),
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		client:       client,
		fallback:     fallback,
		onFallback:   opts.OnFallback,
	}, nil
}

func (o *OpenAIWriter) Write(ctx context.Context, req WriteRequest) (*Document, error) {
	payload := openAIChatRequest{
		Model:       o.model,
		Temperature: 0.7,
		ResponseFormat: &openAIFormat{
			Type: "json_object",
		},
		Messages: []openAIMessage{
			{Role: "system", Content: "You write short astrology guidance and only respond with valid JSON."},
			{Role: "user", Content: buildWritePrompt(req)},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return o.useFallback(ctx, req, "encode_request", err)
	}
	endpoint := fmt.Sprintf("%s/chat/completions", o.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return o.useFallback(ctx, req, "build_request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	if o.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", o.organization)
	}
	resp, err := o.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return o.useFallback(ctx, req, "http_request", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return o.useFallback(ctx, req, fmt.Sprintf("http_%d", resp.StatusCode), fmt.Errorf("openai status %d", resp.StatusCode))
	}
	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return o.useFallback(ctx, req, "decode_response", err)
	}
	if len(out.Choices) == 0 {
		return o.useFallback(ctx, req, "empty_choices", errors.New("no choices"))
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return o.useFallback(ctx, req, "empty_response", errors.New("empty response"))
	}
	var doc Document
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return o.useFallback(ctx, req, "parse_payload", err)
	}
	if len(doc.Sections) == 0 {
		return o.useFallback(ctx, req, "empty_sections", errors.New("no sections"))
	}
	if strings.TrimSpace(doc.Title) == "" {
		doc.Title = fmt.Sprintf("%s · %s", req.Spec.LocalizedTitle(req.Locale), req.DateKey)
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]string{}
	}
	doc.Metadata["locale"] = req.Locale
	doc.Metadata["model"] = o.model
	doc.Provider = openAIProviderName
	return &doc, nil
}

func (o *OpenAIWriter) useFallback(ctx context.Context, req WriteRequest, reason string, fallbackErr error) (*Document, error) {
	if o.onFallback != nil {
		o.onFallback(reason, fallbackErr)
	}
	doc, err := o.fallback.Write(ctx, req)
	if doc != nil {
		if doc.Provider == "" {
			doc.Provider = staticProviderName
		}
		if doc.Metadata == nil {
			doc.Metadata = map[string]string{}
		}
		doc.Metadata["fallback_reason"] = reason
	}
	return doc, err
}

func buildWritePrompt(req WriteRequest) string {
	sb := &strings.Builder{}
	sb.WriteString("Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"title":string,"sections":[{"heading":string,"body":string}]}`)
	fmt.Fprintf(sb, ". Write a %s for %s in locale '%s' with a %s tone. Use exactly these section headings in order: %s. Keep each body under 80 words.",
		req.Spec.Title, req.DateKey, req.Locale, req.Spec.Tone, strings.Join(req.Spec.Sections, ", "))
	return sb.String()
}

func normalizeOpenAIModel(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	if canonical, ok := openAIModelCanonical[normalized]; ok {
		return canonical
	}
	return defaultOpenAIModel
}

var _ Writer = (*OpenAIWriter)(nil)
