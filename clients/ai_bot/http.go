package ai_bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

type clientImpl struct {
	apiHost    string
	httpClient *http.Client
}

type Config struct {
	ApiHost string
	// Timeout bounds one prompt round trip; zero means no limit beyond ctx.
	Timeout time.Duration
}

func NewClient(cfg *Config) (AIBotAPI, error) {
	if cfg == nil {
		return nil, errors.New("missing parameter: cfg")
	}

	if cfg.ApiHost == "" {
		return nil, errors.New("missing parameter: cfg.ApiHost")
	}

	return &clientImpl{
		apiHost:    cfg.ApiHost,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (client *clientImpl) SendPrompt(ctx context.Context, prompt string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.apiHost+"/get_prompt_response", nil)
	if err != nil {
		return "", fmt.Errorf("build prompt request: %w", err)
	}

	q := req.URL.Query()
	q.Add("prompt", prompt)
	req.URL.RawQuery = q.Encode()

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return "", err
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("prompt response status %d: %s", resp.StatusCode, body)
	}

	return string(body), nil
}
