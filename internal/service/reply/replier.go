package reply

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/wrenlabs/concierge/backend/internal/model/capability"
	"github.com/wrenlabs/concierge/backend/internal/model/conversation"
)

const historyLimit = 10

// Replier is the shared LLM reply chain used by every domain handler. Each
// handler supplies its own system prompt; the chain shape (system + history +
// query) is common.
type Replier struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// New compiles the reply chain. A nil chatModel yields a nil Replier, which
// handlers treat as "produce deterministic replies instead".
func New(ctx context.Context, chatModel model.BaseChatModel) (*Replier, error) {
	if chatModel == nil {
		return nil, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile reply chain: %w", err)
	}
	return &Replier{chain: runnable}, nil
}

// Enabled reports whether an LLM is wired in.
func (r *Replier) Enabled() bool {
	return r != nil && r.chain != nil
}

// StreamTo pumps model output chunks into out until the model finishes, the
// model errors, or out is cancelled. The caller ends the stream; StreamTo
// never calls Close or Fail.
func (r *Replier) StreamTo(ctx context.Context, out *capability.Stream, system string, turns []conversation.Turn, query string) error {
	input := map[string]any{
		"system":  system,
		"history": historyMessages(turns),
		"query":   query,
	}

	sr, err := r.chain.Stream(ctx, input)
	if err != nil {
		return fmt.Errorf("stream reply chain: %w", err)
	}
	defer sr.Close()

	for {
		chunk, recvErr := sr.Recv()
		if errors.Is(recvErr, io.EOF) {
			return nil
		}
		if recvErr != nil {
			return fmt.Errorf("recv model chunk: %w", recvErr)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		if err := out.Push(chunk.Content); err != nil {
			return err
		}
	}
}

func historyMessages(turns []conversation.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	startIdx := 0
	if len(turns) > historyLimit {
		startIdx = len(turns) - historyLimit
	}

	history := make([]*schema.Message, 0, len(turns)-startIdx)
	for _, turn := range turns[startIdx:] {
		switch turn.Role {
		case conversation.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case conversation.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}
