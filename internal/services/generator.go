package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// VeoClient submits prompts to the KIE Veo generation API. Results arrive
// later through the callback URL.
type VeoClient struct {
	httpClient  *http.Client
	apiURL      string
	apiKey      string
	model       string
	aspectRatio string
	callbackURL string
}

func NewVeoClient(apiURL, apiKey, model, aspectRatio, callbackURL string) *VeoClient {
	return &VeoClient{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		apiURL:      apiURL,
		apiKey:      apiKey,
		model:       model,
		aspectRatio: aspectRatio,
		callbackURL: callbackURL,
	}
}

type veoGenerateRequest struct {
	Prompt      string `json:"prompt"`
	Model       string `json:"model"`
	AspectRatio string `json:"aspect_ratio"`
	CallBackURL string `json:"callBackUrl"`
}

type veoGenerateResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID string `json:"taskId"`
	} `json:"data"`
}

// Generate makes a single submission attempt and returns the provider's task id.
func (c *VeoClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(veoGenerateRequest{
		Prompt:      prompt,
		Model:       c.model,
		AspectRatio: c.aspectRatio,
		CallBackURL: c.callbackURL,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build generate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &UpstreamError{Service: "veo", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &UpstreamError{Service: "veo", Err: fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))}
	}

	var out veoGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &UpstreamError{Service: "veo", Err: fmt.Errorf("invalid response: %w", err)}
	}

	if out.Data.TaskID == "" {
		return "", &UpstreamError{Service: "veo", Err: fmt.Errorf("no taskId in response (code %d: %s)", out.Code, out.Msg)}
	}

	return out.Data.TaskID, nil
}
