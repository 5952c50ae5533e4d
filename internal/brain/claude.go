package brain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/moorebrett0/vernacular/internal/attachment"
	"github.com/moorebrett0/vernacular/internal/chat"
)

// claudeProvider implements Provider using the Anthropic Claude API.
type claudeProvider struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

func newClaudeProvider(apiKey, model string, maxTokens int64, opts ...option.RequestOption) *claudeProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := anthropic.NewClient(opts...)
	return &claudeProvider{
		client:    &client,
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
	}
}

func (c *claudeProvider) Name() string { return "claude" }

func (c *claudeProvider) Converse(ctx context.Context, req Request) (*Response, error) {
	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		blocks, err := claudeBlocks(m.Blocks)
		if err != nil {
			return nil, err
		}
		role := anthropic.MessageParamRoleUser
		if m.Role == chat.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		msgs = append(msgs, anthropic.MessageParam{Role: role, Content: blocks})
	}

	tools, err := claudeTools(req.Tools)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  msgs,
		Tools:     tools,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	// Convert response
	out := &Response{
		Message:    chat.Message{Role: chat.RoleAssistant},
		StopReason: claudeStopReason(resp.StopReason),
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Message.Blocks = append(out.Message.Blocks, chat.TextBlock(block.AsText().Text))
		case "tool_use":
			tu := block.AsToolUse()
			raw, _ := json.Marshal(tu.Input)
			out.Message.Blocks = append(out.Message.Blocks, chat.ToolUseBlock(chat.ToolUse{
				ID:    tu.ID,
				Name:  tu.Name,
				Input: raw,
			}))
		}
	}
	return out, nil
}

func claudeBlocks(blocks []chat.Block) ([]anthropic.ContentBlockParamUnion, error) {
	out := make([]anthropic.ContentBlockParamUnion, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case chat.KindText:
			out = append(out, anthropic.NewTextBlock(b.Text))
		case chat.KindDocument:
			block, err := claudeDocument(b.Document)
			if err != nil {
				return nil, err
			}
			out = append(out, block)
		case chat.KindImage:
			out = append(out, anthropic.NewImageBlockBase64(b.Image.MIMEType(), base64.StdEncoding.EncodeToString(b.Image.Bytes)))
		case chat.KindToolUse:
			out = append(out, anthropic.NewToolUseBlock(b.ToolUse.ID, b.ToolUse.Input, b.ToolUse.Name))
		case chat.KindToolResult:
			r := b.ToolResult
			out = append(out, anthropic.NewToolResultBlock(r.ToolUseID, string(r.Payload), r.IsError()))
		default:
			return nil, fmt.Errorf("claude: unsupported block kind %q", b.Kind)
		}
	}
	return out, nil
}

// claudeDocument sends PDFs natively and everything else as plain text.
func claudeDocument(doc *chat.Document) (anthropic.ContentBlockParamUnion, error) {
	var block anthropic.ContentBlockParamUnion
	if doc.Format == "pdf" {
		block = anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
			Data: base64.StdEncoding.EncodeToString(doc.Bytes),
		})
	} else {
		text, err := attachment.DocumentText(doc)
		if err != nil {
			return block, fmt.Errorf("claude: document %s: %w", doc.Name, err)
		}
		block = anthropic.NewDocumentBlock(anthropic.PlainTextSourceParam{Data: text})
	}
	if doc.Name != "" {
		block.OfDocument.Title = anthropic.String(doc.Name)
	}
	return block, nil
}

func claudeTools(specs []chat.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		schema, err := parseSchema(spec.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("claude: tool %s schema: %w", spec.Name, err)
		}
		props := make(map[string]any, len(schema.Properties))
		for name, p := range schema.Properties {
			props[name] = p
		}
		tool := anthropic.ToolUnionParamOfTool(
			anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: props,
				Required:   schema.Required,
			},
			spec.Name,
		)
		tool.OfTool.Description = anthropic.String(spec.Description)
		tools = append(tools, tool)
	}
	return tools, nil
}

func claudeStopReason(r anthropic.StopReason) chat.StopReason {
	switch r {
	case anthropic.StopReasonToolUse:
		return chat.StopToolUse
	case anthropic.StopReasonMaxTokens:
		return chat.StopMaxTokens
	case anthropic.StopReasonStopSequence:
		return chat.StopSequence
	case "refusal":
		return chat.StopContentFilter
	default:
		return chat.StopEndTurn
	}
}
