package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkoukk/tiktoken-go"
)

// Generator is the generative collaborator: (system, prompt) -> text.
// Implementations keep no state between calls.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

type GenerateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type GenerateRequest struct {
	Model   string          `json:"model"`
	System  string          `json:"system"`
	Prompt  string          `json:"prompt"`
	Options GenerateOptions `json:"options"`
}

type GenerateResponse struct {
	Response string `json:"response"`
}

// OllamaGenerator calls the Ollama generate endpoint. Temperature stays
// low so [Source N] citations are stable across repeated queries on the
// same context.
type OllamaGenerator struct {
	url         string
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

func NewOllamaGenerator(url, model string, temperature float64, maxTokens int, timeout time.Duration) *OllamaGenerator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OllamaGenerator{
		url:         url,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
	}
}

func (g *OllamaGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	start := time.Now()
	defer func() {
		fmt.Printf("LLM answer tooks %v\n", time.Since(start))
	}()

	reqBody, err := json.Marshal(GenerateRequest{
		Model:  g.model,
		System: system,
		Prompt: prompt,
		Options: GenerateOptions{
			Temperature: g.temperature,
			NumPredict:  g.maxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	if count, err := CountTokens(reqBody); err == nil {
		fmt.Println("Size of Prompt with system in tokens:", count)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", g.url, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to call LLM: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("LLM API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var genResp GenerateResponse
	if err := json.Unmarshal(body, &genResp); err == nil && genResp.Response != "" {
		return genResp.Response, nil
	}

	// Streaming response: collect the pieces into one string.
	var output string
	decoder := json.NewDecoder(bytes.NewReader(body))
	for decoder.More() {
		var chunk GenerateResponse
		if err := decoder.Decode(&chunk); err == nil {
			output += chunk.Response
		}
	}
	if output == "" {
		return "", fmt.Errorf("LLM returned empty response")
	}
	return output, nil
}

func CountTokens(data []byte) (int, error) {
	enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
	if err != nil {
		return 0, err
	}
	tokens := enc.Encode(string(data), nil, nil)
	return len(tokens), nil
}
