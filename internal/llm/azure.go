package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type AzureConfig struct {
	Endpoint   string
	APIKey     string
	APIVersion string
	Deployment string
	Timeout    time.Duration
}

// AzureProvider calls an Azure OpenAI deployment.
type AzureProvider struct {
	url    string
	apiKey string
	client *http.Client
}

func NewAzureProvider(cfg AzureConfig) (*AzureProvider, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	deployment := strings.TrimSpace(cfg.Deployment)
	if deployment == "" {
		return nil, fmt.Errorf("deployment is required")
	}
	apiVersion := strings.TrimSpace(cfg.APIVersion)
	if apiVersion == "" {
		return nil, fmt.Errorf("api version is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AzureProvider{
		url: endpoint + "/openai/deployments/" + url.PathEscape(deployment) +
			"/chat/completions?api-version=" + url.QueryEscape(apiVersion),
		apiKey: strings.TrimSpace(cfg.APIKey),
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (p *AzureProvider) ChatCompletion(ctx context.Context, req Request) (string, error) {
	return postChat(ctx, p.client, p.url, map[string]string{"api-key": p.apiKey}, chatPayload{
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
	})
}
