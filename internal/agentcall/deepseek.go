package agentcall

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/bigfan007/ai-workmate/internal/models"
)

// Completion-style provider: fixed endpoint, chat-completions shape.
type deepSeekMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type deepSeekChatReq struct {
	Model       string        `json:"model"`
	Messages    []deepSeekMsg `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type deepSeekChatResp struct {
	Choices []struct {
		Message deepSeekMsg `json:"message"`
	} `json:"choices"`
}

func (b *Bridge) callDeepSeek(ctx context.Context, agent *models.AIAgent, query string) (string, error) {
	model := agent.DeepSeekModel
	if model == "" {
		model = "deepseek-chat"
	}
	temperature := agent.Temperature
	if temperature == 0 {
		temperature = 0.7
	}
	maxTokens := agent.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	msgs := make([]deepSeekMsg, 0, 2)
	if agent.SystemPrompt != "" {
		msgs = append(msgs, deepSeekMsg{Role: "system", Content: agent.SystemPrompt})
	}
	msgs = append(msgs, deepSeekMsg{Role: "user", Content: query})

	payload, err := json.Marshal(deepSeekChatReq{
		Model:       model,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      false,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.DeepSeekEndpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+agent.DeepSeekAPIKey)
	req.Header.Set("User-Agent", "AI-Assistant/1.0")

	resp, err := b.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &statusError{Code: resp.StatusCode, Status: resp.Status}
	}

	var decoded deepSeekChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &badResponseError{provider: "deepseek"}
	}
	if len(decoded.Choices) == 0 {
		return "", &badResponseError{provider: "deepseek"}
	}
	return decoded.Choices[0].Message.Content, nil
}
