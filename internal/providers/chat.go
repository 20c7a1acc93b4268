package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

const legalSystemPrompt = "You are a legal research assistant for constitutional, statutory and treaty texts. Answer precisely and cite the provided context when it is available."

// chatCompletion posts one user message to an OpenAI-compatible endpoint.
func chatCompletion(ctx context.Context, client *http.Client, vendor, url, apiKey, model string, req GenerateRequest) (string, error) {
	system := req.System
	if strings.TrimSpace(system) == "" {
		system = legalSystemPrompt
	}
	payload, _ := json.Marshal(map[string]any{
		"model":       model,
		"temperature": req.Temperature,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": req.Prompt},
		},
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%s generate request: %w", vendor, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s generate request failed: %w", vendor, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%s generate error %d: %s", vendor, resp.StatusCode, string(body))
	}
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode %s response: %w", vendor, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%s returned empty choices", vendor)
	}
	return parsed.Choices[0].Message.Content, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
