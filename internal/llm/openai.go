package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIProvider implements Provider using the OpenAI chat completions
// API. Works against any compatible server when baseURL is set.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI provider. The API key falls back
// to OPENAI_API_KEY when empty; baseURL is optional.
func NewOpenAIProvider(apiKey, baseURL, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" && baseURL == "" {
		return nil, fmt.Errorf("openai: no API key in config or OPENAI_API_KEY")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(baseURL, "/")+"/"))
	}
	client := openai.NewClient(opts...)
	return &OpenAIProvider{client: &client, model: model}, nil
}

func (p *OpenAIProvider) Name() string {
	return fmt.Sprintf("OpenAI (%s)", p.model)
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		params := openai.ChatCompletionNewParams{
			Model:    shared.ChatModel(chooseModel(req.Model, p.model)),
			Messages: buildOpenAIMessages(req.Messages),
			StreamOptions: openai.ChatCompletionStreamOptionsParam{
				IncludeUsage: openai.Bool(true),
			},
		}
		if req.MaxOutputTokens > 0 {
			params.MaxCompletionTokens = openai.Int(int64(req.MaxOutputTokens))
		}
		if len(req.Tools) > 0 {
			params.Tools = buildOpenAITools(req.Tools)
			params.ParallelToolCalls = openai.Bool(req.ParallelToolCalls)
			if tc := buildOpenAIToolChoice(req.ToolChoice); tc != nil {
				params.ToolChoice = *tc
			}
		}

		// Tool-call fragments arrive keyed by choice index; ids show up
		// on the first fragment and names may trail in later ones.
		openCalls := make(map[int64]*ToolCall)
		var lastUsage *Usage

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.TotalTokens > 0 {
				lastUsage = &Usage{
					InputTokens:  int(chunk.Usage.PromptTokens),
					OutputTokens: int(chunk.Usage.CompletionTokens),
				}
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				events <- Event{Type: EventTextDelta, Text: choice.Delta.Content}
			}
			for _, tc := range choice.Delta.ToolCalls {
				call, open := openCalls[tc.Index]
				if !open {
					call = &ToolCall{ID: tc.ID, Name: tc.Function.Name}
					openCalls[tc.Index] = call
					events <- Event{Type: EventToolCallStart, Tool: &ToolCall{ID: call.ID, Name: call.Name}}
				}
				if tc.Function.Arguments == "" && tc.Function.Name == "" {
					continue
				}
				ev := Event{Type: EventToolCallDelta, CallID: call.ID, ArgsDelta: tc.Function.Arguments}
				if open && tc.Function.Name != "" && tc.Function.Name != call.Name {
					call.Name = tc.Function.Name
					ev.ToolName = tc.Function.Name
				}
				call.Arguments = append(call.Arguments, tc.Function.Arguments...)
				events <- ev
			}
			if choice.FinishReason != "" {
				for _, call := range sortedOpenCalls(openCalls) {
					events <- Event{Type: EventToolCall, Tool: call}
				}
				openCalls = make(map[int64]*ToolCall)
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("openai streaming error: %w", err)
		}
		if lastUsage != nil {
			events <- Event{Type: EventUsage, Use: lastUsage}
		}
		events <- Event{Type: EventDone}
		return nil
	}), nil
}

// sortedOpenCalls returns the in-flight calls in index order so the
// finalized turn preserves the model's ordering.
func sortedOpenCalls(calls map[int64]*ToolCall) []*ToolCall {
	out := make([]*ToolCall, 0, len(calls))
	for i := int64(0); len(out) < len(calls); i++ {
		if call, ok := calls[i]; ok {
			out = append(out, call)
		}
	}
	return out
}

func buildOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if text := collectTextParts(msg.Parts); text != "" {
				out = append(out, openai.SystemMessage(text))
			}
		case RoleUser:
			if text := collectTextParts(msg.Parts); text != "" {
				out = append(out, openai.UserMessage(text))
			}
		case RoleAssistant:
			out = append(out, buildOpenAIAssistantMessage(msg.Parts)...)
		case RoleTool:
			for _, part := range msg.Parts {
				if part.Type == PartToolResult && part.ToolResult != nil {
					out = append(out, openai.ToolMessage(part.ToolResult.Content, part.ToolResult.ID))
				}
			}
		}
	}
	return out
}

func buildOpenAIAssistantMessage(parts []Part) []openai.ChatCompletionMessageParamUnion {
	var text strings.Builder
	var toolCalls []openai.ChatCompletionMessageToolCallParam
	for _, part := range parts {
		switch part.Type {
		case PartText:
			text.WriteString(part.Text)
		case PartToolCall:
			if part.ToolCall == nil {
				continue
			}
			args := string(part.ToolCall.Arguments)
			if args == "" || !json.Valid([]byte(args)) {
				args = "{}"
			}
			toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
				ID: part.ToolCall.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      part.ToolCall.Name,
					Arguments: args,
				},
			})
		}
	}
	if len(toolCalls) == 0 {
		if text.Len() == 0 {
			return nil
		}
		return []openai.ChatCompletionMessageParamUnion{openai.AssistantMessage(text.String())}
	}
	assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls}
	if text.Len() > 0 {
		assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(text.String()),
		}
	}
	return []openai.ChatCompletionMessageParamUnion{{OfAssistant: &assistant}}
}

func buildOpenAITools(specs []ToolSpec) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openai.String(spec.Description),
				Parameters:  shared.FunctionParameters(spec.Schema),
			},
		})
	}
	return tools
}

func buildOpenAIToolChoice(choice ToolChoice) *openai.ChatCompletionToolChoiceOptionUnionParam {
	switch choice.Mode {
	case ToolChoiceNone:
		return &openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("none")}
	case ToolChoiceRequired:
		return &openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("required")}
	case ToolChoiceName:
		return &openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: choice.Name},
			},
		}
	case ToolChoiceAuto:
		return &openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("auto")}
	}
	return nil
}
