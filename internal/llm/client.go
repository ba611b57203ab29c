package llm

import "context"

type Message struct {
	Role    string
	Content string
}

// Request carries one completion call. An empty APIKey means the client's
// configured key.
type Request struct {
	Model       string
	Temperature float64
	Messages    []Message
	APIKey      string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}
