// Package agent answers natural-language questions about an ingested flight
// log by driving an OpenAI chat-completions tool loop. The model never sees
// raw log bytes; it works through a small set of tools that query the log,
// scan for anomalies and pull record or series previews.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/surya-garg/UAVLogViewer/internal/flight"
)

const (
	// maxToolRounds bounds how many tool-calling exchanges a single Chat
	// may make before the model is forced to answer with what it has.
	maxToolRounds = 5

	// rawPreview caps how many raw records a tool result carries.
	rawPreview = 10

	// defaultLimit is the record fetch size when the model does not ask
	// for one.
	defaultLimit = 100

	// sampleLen is the number of series points included alongside stats.
	sampleLen = 5
)

// ChatClient is the slice of the OpenAI client the agent needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Agent holds one conversation about one flight log.
type Agent struct {
	client  ChatClient
	model   string
	log     *flight.Log
	history []openai.ChatCompletionMessage
	logger  *slog.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger attaches a logger to the agent.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger.With(slog.String("component", "agent"))
	}
}

// New creates an agent for the given log. The model name is passed through
// to every completion request.
func New(client ChatClient, model string, log *flight.Log, opts ...Option) *Agent {
	a := &Agent{
		client: client,
		model:  model,
		log:    log,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Chat sends one user message and returns the model's answer. Tool calls
// issued by the model are executed against the log, up to maxToolRounds
// exchanges; after that the model is asked to answer without tools. The
// full exchange, tool traffic included, is kept in the conversation history
// so follow-up questions have context.
func (a *Agent) Chat(ctx context.Context, message string) (string, error) {
	a.history = append(a.history, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	msgs := make([]openai.ChatCompletionMessage, 0, len(a.history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: a.systemPrompt(),
	})
	msgs = append(msgs, a.history...)

	for round := 0; round < maxToolRounds; round++ {
		reply, err := a.complete(ctx, openai.ChatCompletionRequest{
			Model:    a.model,
			Messages: msgs,
			Tools:    toolDefinitions(),
		})
		if err != nil {
			return "", err
		}

		if len(reply.ToolCalls) == 0 {
			a.history = append(a.history, reply)
			return reply.Content, nil
		}

		msgs = append(msgs, reply)
		a.history = append(a.history, reply)
		for _, call := range reply.ToolCalls {
			a.logger.Debug("executing tool call",
				slog.String("tool", call.Function.Name),
				slog.Int("round", round+1))
			result := openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    a.callTool(call),
				ToolCallID: call.ID,
			}
			msgs = append(msgs, result)
			a.history = append(a.history, result)
		}
	}

	// The tool budget is spent. Ask once more without tools so the model
	// has to answer from the results it already gathered.
	reply, err := a.complete(ctx, openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: msgs,
	})
	if err != nil {
		return "", err
	}
	a.history = append(a.history, reply)
	return reply.Content, nil
}

func (a *Agent) complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return openai.ChatCompletionMessage{}, fmt.Errorf("requesting chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message, nil
}

// Reset discards the conversation history. The log stays attached.
func (a *Agent) Reset() {
	a.history = nil
}

// History returns a copy of the conversation so far.
func (a *Agent) History() []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(a.history))
	copy(out, a.history)
	return out
}

// systemPrompt summarises the attached log so the model knows what it is
// working with before it issues any tool calls.
func (a *Agent) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are an expert UAV flight log analyst.")
	if a.log == nil {
		b.WriteString(" No flight log has been uploaded for this session yet; ask the user to upload a .bin dataflash log before analysing anything.")
		return b.String()
	}
	b.WriteString(" You are answering questions about one ArduPilot dataflash log that has already been parsed.\n\n")

	meta := a.log.Metadata()
	b.WriteString("Flight summary:\n")
	fmt.Fprintf(&b, "- Total messages: %d\n", meta.TotalMessages)
	if types := a.log.Types(); len(types) > 0 {
		fmt.Fprintf(&b, "- Message types: %s\n", strings.Join(types, ", "))
	}
	if meta.DurationSeconds != nil {
		fmt.Fprintf(&b, "- Flight duration: %.1f seconds\n", *meta.DurationSeconds)
	}
	if meta.MinAltitudeM != nil && meta.MaxAltitudeM != nil {
		fmt.Fprintf(&b, "- Altitude range: %.1f to %.1f m\n", *meta.MinAltitudeM, *meta.MaxAltitudeM)
	}
	fmt.Fprintf(&b, "- GPS signal loss events: %d\n", len(meta.GPSLossEvents))
	fmt.Fprintf(&b, "- Error events: %d\n", len(meta.Errors))
	fmt.Fprintf(&b, "- RC signal loss events: %d\n", len(meta.RCLossEvents))
	b.WriteString("\nGround every answer in tool results. Quote concrete values and timestamps rather than generalities. ")
	b.WriteString("Point out anomalies the data shows even when the user did not ask about them. ")
	b.WriteString("If the log does not contain the data needed to answer, say so plainly instead of guessing.")
	return b.String()
}
