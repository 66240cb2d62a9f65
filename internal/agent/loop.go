package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hkuds/runbox/internal/sandbox"
	"github.com/hkuds/runbox/internal/tools"
)

const systemPrompt = `You are an autonomous assistant that completes tasks by calling tools.
Commands and code run in an isolated sandbox whose working directory is /workspace.
Write files the user should receive to /workspace/output.
When the task is complete, reply with the final answer instead of calling a tool.`

// ChatClient is the slice of the OpenAI client the loop needs. The
// sashabaranov client satisfies it directly.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config configures a Loop.
type Config struct {
	Client        ChatClient
	Registry      *tools.Registry
	Session       *sandbox.Session
	Model         string
	MaxIterations int
	MaxTokens     int
}

// Loop runs a bounded tool-calling conversation: the model proposes tool
// calls, the loop executes them against the registry and feeds the
// observations back, until the model answers or the iteration cap is hit.
type Loop struct {
	client        ChatClient
	registry      *tools.Registry
	session       *sandbox.Session
	model         string
	maxIterations int
	maxTokens     int
}

// RunResult summarizes one completed run.
type RunResult struct {
	RunID      string
	Answer     string
	Iterations int
	ToolCalls  int
}

// NewLoop creates a Loop from the given configuration.
func NewLoop(cfg Config) (*Loop, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("chat client is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}

	return &Loop{
		client:        cfg.Client,
		registry:      cfg.Registry,
		session:       cfg.Session,
		model:         cfg.Model,
		maxIterations: cfg.MaxIterations,
		maxTokens:     cfg.MaxTokens,
	}, nil
}

// Run executes one task to completion. Cancelling ctx aborts the run,
// including any in-flight sandbox call.
func (l *Loop) Run(ctx context.Context, task string) (*RunResult, error) {
	if strings.TrimSpace(task) == "" {
		return nil, fmt.Errorf("task is empty")
	}

	result := &RunResult{RunID: uuid.NewString()}
	log.Printf("run %s: starting (%d iteration budget)", result.RunID, l.maxIterations)

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: task},
	}
	toolDefs := l.openAITools()

	for i := 0; i < l.maxIterations; i++ {
		result.Iterations = i + 1

		resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:     l.model,
			Messages:  messages,
			Tools:     toolDefs,
			MaxTokens: l.maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("chat completion returned no choices")
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			result.Answer = msg.Content
			return result, nil
		}

		messages = append(messages, msg)
		for _, tc := range msg.ToolCalls {
			observation := l.runTool(ctx, tc)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			result.ToolCalls++
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: tc.ID,
				Name:       tc.Function.Name,
				Content:    observation,
			})
		}
	}

	// Iteration budget spent: ask for a final answer with tools withheld.
	log.Printf("run %s: iteration budget exhausted, requesting final answer", result.RunID)
	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     l.model,
		Messages:  messages,
		MaxTokens: l.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("final chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("final chat completion returned no choices")
	}
	result.Answer = resp.Choices[0].Message.Content
	return result, nil
}

// runTool executes one tool call and renders the outcome as an
// observation. Failures are reported to the model, not to the caller; the
// model decides how to recover.
func (l *Loop) runTool(ctx context.Context, tc openai.ToolCall) string {
	var params map[string]interface{}
	if tc.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &params); err != nil {
			return fmt.Sprintf("Tool error: arguments are not valid JSON: %v", err)
		}
	}

	observation, err := l.registry.Execute(ctx, tc.Function.Name, params)
	if err != nil {
		log.Printf("tool %s failed: %v", tc.Function.Name, err)
		return fmt.Sprintf("Tool error: %v", err)
	}
	return sandbox.TruncateObservation(observation, l.observationBudget())
}

func (l *Loop) observationBudget() int {
	tokens := sandbox.DefaultMaxObservationTokens
	if l.session != nil && l.session.Config().MaxObservationTokens > 0 {
		tokens = l.session.Config().MaxObservationTokens
	}
	return sandbox.ObservationCharBudget(tokens)
}

// openAITools converts the registry's visible definitions to the wire
// format the chat API expects.
func (l *Loop) openAITools() []openai.Tool {
	defs := l.registry.Definitions()
	out := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Function.Name,
				Description: def.Function.Description,
				Parameters:  def.Function.Parameters,
			},
		})
	}
	return out
}
