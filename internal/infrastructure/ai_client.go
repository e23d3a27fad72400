package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AIServiceClient calls the separate AI microservice. The service is opaque:
// it gets the user's message and answers with the reply text.
type AIServiceClient struct {
	baseURL string
	http    *http.Client
}

func NewAIServiceClient(baseURL string, timeout time.Duration) *AIServiceClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AIServiceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (c *AIServiceClient) GenerateResponse(ctx context.Context, userID, message string) (string, error) {
	data, err := json.Marshal(generateRequest{UserID: userID, Message: message})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ai service: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ai service: decode: %w", err)
	}
	return out.Response, nil
}
