package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/havenapp/haven/pkg/config"
)

const (
	defaultAPIBase      = "https://openrouter.ai/api/v1"
	defaultModel        = "openai/gpt-5.2"
	defaultHTTPTimeout  = 120 * time.Second
	maxStreamLineLength = 1024 * 1024
)

// HTTPProvider talks to any OpenAI-compatible chat-completions endpoint.
type HTTPProvider struct {
	apiKey     string
	apiBase    string
	httpClient *http.Client
}

func NewHTTPProvider(apiKey, apiBase, proxy string) *HTTPProvider {
	client := &http.Client{Timeout: defaultHTTPTimeout}

	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err == nil {
			client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &HTTPProvider{
		apiKey:     apiKey,
		apiBase:    strings.TrimRight(apiBase, "/"),
		httpClient: client,
	}
}

func (p *HTTPProvider) GetDefaultModel() string {
	return defaultModel
}

func (p *HTTPProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) (*LLMResponse, error) {
	body, err := p.roundTrip(ctx, messages, tools, model, options, false)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}
	return parseCompletion(raw)
}

// ChatStream runs one provider round with server-sent events enabled.
// onDelta receives each text fragment as it arrives; tool-call argument
// fragments are accumulated internally and surface only in the returned
// response.
func (p *HTTPProvider) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}, onDelta func(string)) (*LLMResponse, error) {
	body, err := p.roundTrip(ctx, messages, tools, model, options, true)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return parseStream(body, onDelta)
}

func (p *HTTPProvider) roundTrip(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}, stream bool) (io.ReadCloser, error) {
	if p.apiBase == "" {
		return nil, fmt.Errorf("provider API base not configured")
	}

	model = strings.TrimSpace(model)
	if model == "" {
		model = p.GetDefaultModel()
	}

	requestBody := map[string]interface{}{
		"model":    model,
		"messages": toWireMessages(messages),
	}
	if stream {
		requestBody["stream"] = true
	}

	if len(tools) > 0 {
		requestBody["tools"] = tools
		requestBody["tool_choice"] = "auto"
	}

	if maxTokens, ok := options["max_tokens"].(int); ok {
		requestBody["max_tokens"] = maxTokens
	}

	if temperature, ok := options["temperature"].(float64); ok {
		requestBody["temperature"] = temperature
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("marshal provider request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create provider request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send provider request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	return resp.Body, nil
}

// toWireMessages converts tool calls into the chat-completions function
// shape (arguments as a JSON string).
func toWireMessages(messages []Message) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(messages))
	for _, m := range messages {
		wire := map[string]interface{}{
			"role":    m.Role,
			"content": m.Content,
		}
		if m.ToolCallID != "" {
			wire["tool_call_id"] = m.ToolCallID
		}
		if len(m.ToolCalls) > 0 {
			calls := make([]map[string]interface{}, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Arguments)
				calls = append(calls, map[string]interface{}{
					"id":   tc.ID,
					"type": "function",
					"function": map[string]interface{}{
						"name":      tc.Name,
						"arguments": string(args),
					},
				})
			}
			wire["tool_calls"] = calls
		}
		out = append(out, wire)
	}
	return out
}

type wireToolCall struct {
	Index    *int   `json:"index"`
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function *struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func parseCompletion(body []byte) (*LLMResponse, error) {
	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content   string         `json:"content"`
				ToolCalls []wireToolCall `json:"tool_calls"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage *UsageInfo `json:"usage"`
	}

	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return nil, fmt.Errorf("unmarshal provider response: %w", err)
	}

	if len(apiResponse.Choices) == 0 {
		return &LLMResponse{Content: "", FinishReason: "stop"}, nil
	}

	choice := apiResponse.Choices[0]
	toolCalls := make([]ToolCall, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		if tc.Function == nil {
			continue
		}
		toolCalls = append(toolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: parseToolArguments(tc.Function.Arguments),
		})
	}

	return &LLMResponse{
		Content:      choice.Message.Content,
		ToolCalls:    toolCalls,
		FinishReason: choice.FinishReason,
		Usage:        apiResponse.Usage,
	}, nil
}

// parseStream consumes an SSE body. Text deltas are forwarded to onDelta;
// tool-call deltas are merged by index since argument JSON arrives in
// fragments across chunks.
func parseStream(body io.Reader, onDelta func(string)) (*LLMResponse, error) {
	type partialCall struct {
		id   string
		name string
		args strings.Builder
	}

	var content strings.Builder
	finishReason := "stop"
	partials := map[int]*partialCall{}
	order := []int{}
	var usage *UsageInfo

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLineLength)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content   string         `json:"content"`
					ToolCalls []wireToolCall `json:"tool_calls"`
				} `json:"delta"`
				FinishReason string `json:"finish_reason"`
			} `json:"choices"`
			Usage *UsageInfo `json:"usage"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed keepalive chunks rather than killing the round.
			continue
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			if onDelta != nil {
				onDelta(choice.Delta.Content)
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			pc, seen := partials[idx]
			if !seen {
				pc = &partialCall{}
				partials[idx] = pc
				order = append(order, idx)
			}
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function != nil {
				if tc.Function.Name != "" {
					pc.name = tc.Function.Name
				}
				pc.args.WriteString(tc.Function.Arguments)
			}
		}
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read provider stream: %w", err)
	}

	toolCalls := make([]ToolCall, 0, len(order))
	for _, idx := range order {
		pc := partials[idx]
		if pc.name == "" {
			continue
		}
		toolCalls = append(toolCalls, ToolCall{
			ID:        pc.id,
			Name:      pc.name,
			Arguments: parseToolArguments(pc.args.String()),
		})
	}

	return &LLMResponse{
		Content:      content.String(),
		ToolCalls:    toolCalls,
		FinishReason: finishReason,
		Usage:        usage,
	}, nil
}

func parseToolArguments(raw string) map[string]interface{} {
	arguments := make(map[string]interface{})
	if raw == "" {
		return arguments
	}
	if err := json.Unmarshal([]byte(raw), &arguments); err != nil {
		arguments["raw"] = raw
	}
	return arguments
}

// CreateProvider builds the configured inference provider.
func CreateProvider(cfg *config.Config) (LLMProvider, error) {
	apiKey := strings.TrimSpace(cfg.Provider.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("provider API key is required (set provider.api_key or HAVEN_PROVIDER_API_KEY)")
	}

	apiBase := strings.TrimSpace(cfg.Provider.APIBase)
	if apiBase == "" {
		apiBase = defaultAPIBase
	}

	return NewHTTPProvider(apiKey, apiBase, strings.TrimSpace(cfg.Provider.Proxy)), nil
}
