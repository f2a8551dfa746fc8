package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider implements Provider using the Gemini API. Text streams
// incrementally; function-call turns arrive in one shot, so tool calls
// come through as complete events.
type GeminiProvider struct {
	apiKey string
	model  string
}

// NewGeminiProvider creates a Gemini provider. The API key falls back
// to GEMINI_API_KEY when empty.
func NewGeminiProvider(apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: no API key in config or GEMINI_API_KEY")
	}
	return &GeminiProvider{apiKey: apiKey, model: model}, nil
}

func (p *GeminiProvider) Name() string {
	return fmt.Sprintf("Gemini (%s)", p.model)
}

func (p *GeminiProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: p.apiKey})
		if err != nil {
			return fmt.Errorf("failed to create gemini client: %w", err)
		}

		system, contents := buildGeminiContents(req.Messages)
		if len(contents) == 0 {
			return fmt.Errorf("no user content provided")
		}

		config := &genai.GenerateContentConfig{}
		if system != "" {
			config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
		}
		if req.MaxOutputTokens > 0 {
			config.MaxOutputTokens = int32(req.MaxOutputTokens)
		}
		if len(req.Tools) > 0 {
			config.Tools = buildGeminiTools(req.Tools)
			config.ToolConfig = buildGeminiToolConfig(req.ToolChoice)
		}

		model := chooseModel(req.Model, p.model)

		// Function calling does not stream; fetch the full response and
		// replay its parts as events.
		if len(req.Tools) > 0 {
			resp, err := client.Models.GenerateContent(ctx, model, contents, config)
			if err != nil {
				return fmt.Errorf("gemini API error: %w", err)
			}
			if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
				for _, part := range resp.Candidates[0].Content.Parts {
					if part.Text != "" && !part.Thought {
						events <- Event{Type: EventTextDelta, Text: part.Text}
					}
					if part.Text != "" && part.Thought {
						events <- Event{Type: EventReasoningDelta, Text: part.Text}
					}
					if part.FunctionCall != nil {
						argsJSON, _ := json.Marshal(part.FunctionCall.Args)
						events <- Event{Type: EventToolCall, Tool: &ToolCall{
							ID:        part.FunctionCall.ID,
							Name:      part.FunctionCall.Name,
							Arguments: argsJSON,
						}}
					}
				}
			}
			emitGeminiUsage(events, resp)
			events <- Event{Type: EventDone}
			return nil
		}

		var lastResp *genai.GenerateContentResponse
		for resp, err := range client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				return fmt.Errorf("gemini streaming error: %w", err)
			}
			lastResp = resp
			if text := resp.Text(); text != "" {
				events <- Event{Type: EventTextDelta, Text: text}
			}
		}
		emitGeminiUsage(events, lastResp)
		events <- Event{Type: EventDone}
		return nil
	}), nil
}

func emitGeminiUsage(events chan<- Event, resp *genai.GenerateContentResponse) {
	if resp == nil || resp.UsageMetadata == nil || resp.UsageMetadata.TotalTokenCount == 0 {
		return
	}
	events <- Event{Type: EventUsage, Use: &Usage{
		InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
		OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
	}}
}

func buildGeminiContents(messages []Message) (string, []*genai.Content) {
	var systemParts []string
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if text := collectTextParts(msg.Parts); text != "" {
				systemParts = append(systemParts, text)
			}
		case RoleUser:
			if content := buildGeminiContent(genai.RoleUser, msg.Parts); content != nil {
				contents = append(contents, content)
			}
		case RoleAssistant:
			if content := buildGeminiContent(genai.RoleModel, msg.Parts); content != nil {
				contents = append(contents, content)
			}
		case RoleTool:
			if content := buildGeminiToolResultContent(msg.Parts); content != nil {
				contents = append(contents, content)
			}
		}
	}

	return strings.Join(systemParts, "\n\n"), contents
}

func buildGeminiContent(role string, parts []Part) *genai.Content {
	content := &genai.Content{Role: role}
	for _, part := range parts {
		switch part.Type {
		case PartText:
			if part.Text != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: part.Text})
			}
		case PartToolCall:
			if part.ToolCall == nil {
				continue
			}
			var args map[string]any
			if len(part.ToolCall.Arguments) > 0 {
				_ = json.Unmarshal(part.ToolCall.Arguments, &args)
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   part.ToolCall.ID,
					Name: part.ToolCall.Name,
					Args: args,
				},
			})
		}
	}
	if len(content.Parts) == 0 {
		return nil
	}
	return content
}

func buildGeminiToolResultContent(parts []Part) *genai.Content {
	content := &genai.Content{Role: genai.RoleUser}
	for _, part := range parts {
		if part.Type != PartToolResult || part.ToolResult == nil {
			continue
		}
		content.Parts = append(content.Parts, &genai.Part{
			FunctionResponse: &genai.FunctionResponse{
				ID:       part.ToolResult.ID,
				Name:     part.ToolResult.Name,
				Response: map[string]any{"output": part.ToolResult.Content},
			},
		})
	}
	if len(content.Parts) == 0 {
		return nil
	}
	return content
}

func buildGeminiTools(specs []ToolSpec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]*genai.Tool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  geminiSchema(spec.Schema),
			}},
		})
	}
	return tools
}

func buildGeminiToolConfig(choice ToolChoice) *genai.ToolConfig {
	mode := genai.FunctionCallingConfigModeAuto
	var allowed []string

	switch choice.Mode {
	case ToolChoiceNone:
		mode = genai.FunctionCallingConfigModeNone
	case ToolChoiceRequired:
		mode = genai.FunctionCallingConfigModeAny
	case ToolChoiceName:
		if strings.TrimSpace(choice.Name) != "" {
			mode = genai.FunctionCallingConfigModeAny
			allowed = []string{choice.Name}
		}
	}

	return &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode:                 mode,
			AllowedFunctionNames: allowed,
		},
	}
}

// geminiSchema converts a JSON-schema map into the genai typed schema.
// Keywords genai has no field for (additionalProperties, format, bounds)
// are dropped.
func geminiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}

	out := &genai.Schema{Type: geminiType(schema)}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}
	out.Required = schemaRequired(schema)

	if props, ok := schema["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				out.Properties[name] = geminiSchema(propMap)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		out.Items = geminiSchema(items)
	}
	return out
}

func geminiType(schema map[string]any) genai.Type {
	t, _ := schema["type"].(string)
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}
