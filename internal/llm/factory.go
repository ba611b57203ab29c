package llm

import (
	"fmt"
	"strings"
	"sync"

	"webchat/internal/config"
)

const (
	ProviderOpenAI = "openai"
	ProviderYandex = "yandex"
)

// Factory creates LLM clients with consistent logic
type Factory struct {
	OpenaiAPIKey       string
	OpenaiBaseURL      string
	OpenRouterReferrer string
	OpenRouterTitle    string
	YandexOAuthToken   string
	YandexFolderID     string

	mu     sync.Mutex
	yandex *YandexClient
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		OpenaiAPIKey:       cfg.OpenAIAPIKey,
		OpenaiBaseURL:      cfg.OpenAIBaseURL,
		OpenRouterReferrer: cfg.OpenRouterReferrer,
		OpenRouterTitle:    cfg.OpenRouterTitle,
		YandexOAuthToken:   cfg.YandexOAuthToken,
		YandexFolderID:     cfg.YandexFolderID,
	}
}

// CreateClient returns a client for provider. The Yandex client is created
// once, since it exchanges the OAuth token for an IAM token on creation.
func (f *Factory) CreateClient(provider string) (Client, error) {
	switch strings.ToLower(provider) {
	case ProviderOpenAI:
		return NewOpenAI(f.OpenaiAPIKey, f.OpenaiBaseURL, f.OpenRouterReferrer, f.OpenRouterTitle), nil
	case ProviderYandex:
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.yandex == nil {
			c, err := NewYandex(f.YandexOAuthToken, f.YandexFolderID)
			if err != nil {
				return nil, err
			}
			f.yandex = c
		}
		return f.yandex, nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", provider)
	}
}
