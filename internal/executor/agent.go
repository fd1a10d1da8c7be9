package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cronbot/internal/task/model"
	logx "cronbot/pkg/logx"

	openai "github.com/sashabaranov/go-openai"
)

// ChatClient is the part of *openai.Client the agent uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type AgentConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxTokens    int
}

// Agent sends the job's prompt to a chat model and delivers the reply.
type Agent struct {
	Client       ChatClient
	Model        string
	SystemPrompt string
	MaxTokens    int
	Notifier     Notifier
	Location     *time.Location
	Now          func() time.Time
	Log          logx.Logger
}

// NewOpenAIClient builds a client for OpenAI or any compatible endpoint.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func NewAgent(cfg AgentConfig, notifier Notifier, loc *time.Location, log logx.Logger) *Agent {
	return &Agent{
		Client:       NewOpenAIClient(cfg.APIKey, cfg.BaseURL),
		Model:        cfg.Model,
		SystemPrompt: cfg.SystemPrompt,
		MaxTokens:    cfg.MaxTokens,
		Notifier:     notifier,
		Location:     loc,
		Log:          log,
	}
}

func (a *Agent) Execute(ctx context.Context, job model.CronJob) error {
	if strings.TrimSpace(job.Prompt) == "" {
		return errors.New("job has no prompt")
	}
	req := openai.ChatCompletionRequest{
		Model: a.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: a.systemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: job.Prompt},
		},
	}
	if a.MaxTokens > 0 {
		req.MaxTokens = a.MaxTokens
	}

	a.Log.Info("asking agent", logx.String("id", job.ID), logx.String("model", a.Model))
	resp, err := a.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		return fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return errors.New("chat completion returned no choices")
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return errors.New("chat completion returned an empty reply")
	}

	if err := a.Notifier.Send(ctx, reply); err != nil {
		return fmt.Errorf("deliver reply: %w", err)
	}
	a.Log.Debug("agent reply delivered",
		logx.String("id", job.ID),
		logx.Int("tokens", resp.Usage.TotalTokens),
	)
	return nil
}

func (a *Agent) systemPrompt() string {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	loc := a.Location
	if loc == nil {
		loc = time.Local
	}
	current := now().In(loc).Format("Monday, January 2, 2006 03:04 PM MST")

	base := strings.TrimSpace(a.SystemPrompt)
	if base == "" {
		base = "You are a helpful assistant running a scheduled task. Reply with the message to send to the user."
	}
	return fmt.Sprintf("%s\nThe current time is %s.", base, current)
}
