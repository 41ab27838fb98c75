package agentcall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bigfan007/ai-workmate/internal/models"
)

// Workflow-style provider: POST {endpoint}/chat-messages in blocking mode.
type difyChatReq struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID string         `json:"conversation_id"`
	User           string         `json:"user"`
}

type difyChatResp struct {
	Answer string `json:"answer"`
}

func (b *Bridge) callDify(ctx context.Context, agent *models.AIAgent, query string) (string, error) {
	reqBody := difyChatReq{
		Inputs:         map[string]any{},
		Query:          query,
		ResponseMode:   "blocking",
		ConversationID: "",
		User:           fmt.Sprintf("user-%d", time.Now().UnixMilli()),
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(agent.APIEndpoint, "/") + "/chat-messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+agent.APIKey)
	req.Header.Set("User-Agent", "AI-Assistant/1.0")

	resp, err := b.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &statusError{Code: resp.StatusCode, Status: resp.Status}
	}

	var decoded difyChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &badResponseError{provider: "dify"}
	}
	if decoded.Answer == "" {
		return "", &badResponseError{provider: "dify"}
	}
	return decoded.Answer, nil
}
