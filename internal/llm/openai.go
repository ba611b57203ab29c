package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

type OpenAIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type headerTransport struct {
	rt      http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone request to avoid mutating the original
	cl := req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			cl.Header.Add(k, v)
		}
	}
	return t.rt.RoundTrip(cl)
}

func NewOpenAI(apiKey, baseURL, referrer, title string) *OpenAIClient {
	c := &OpenAIClient{apiKey: apiKey, baseURL: baseURL}
	// Inject optional headers (useful for OpenRouter)
	if referrer != "" || title != "" {
		h := http.Header{}
		if referrer != "" {
			h.Set("HTTP-Referer", referrer)
		}
		if title != "" {
			h.Set("X-Title", title)
		}
		c.httpClient = &http.Client{Transport: headerTransport{rt: http.DefaultTransport, headers: h}}
	}
	return c
}

func (c *OpenAIClient) client(apiKey string) *openai.Client {
	if apiKey == "" {
		apiKey = c.apiKey
	}
	config := openai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		config.BaseURL = c.baseURL
	}
	if c.httpClient != nil {
		config.HTTPClient = c.httpClient
	}
	return openai.NewClientWithConfig(config)
}

func (c *OpenAIClient) Generate(ctx context.Context, r Request) (Response, error) {
	if r.APIKey == "" && c.apiKey == "" {
		return Response{}, errors.New("no api key configured")
	}
	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(r.Messages))
	for _, m := range r.Messages {
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	temp := float32(r.Temperature)
	if temp == 0 {
		// zero is omitted from the request body and the API would apply its default
		temp = math.SmallestNonzeroFloat32
	}
	req := openai.ChatCompletionRequest{
		Model:       r.Model,
		Messages:    oaMsgs,
		Temperature: temp,
	}

	resp, err := c.client(r.APIKey).CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, errors.New("chat completion returned no choices")
	}

	out := Response{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
	}
	if out.Model == "" {
		out.Model = r.Model
	}
	out.PromptTokens = resp.Usage.PromptTokens
	out.CompletionTokens = resp.Usage.CompletionTokens
	out.TotalTokens = resp.Usage.TotalTokens
	return out, nil
}
