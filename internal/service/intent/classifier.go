package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/wrenlabs/concierge/backend/internal/model/capability"
	"github.com/wrenlabs/concierge/backend/internal/model/conversation"
)

// Unknown is the routing outcome when no handler clears the confidence
// threshold and there is no previous handler to continue with. The caller
// answers with a clarification instead of guessing a default.
const Unknown = "unknown"

// Source labels which path produced a decision, for audit logging.
type Source string

const (
	// SourceModel means the decision came straight from a classification result.
	SourceModel Source = "model"
	// SourceSticky means a low-confidence result kept the previous handler.
	SourceSticky Source = "sticky"
	// SourceFallback means classification was unavailable and the stickiness
	// rule alone decided.
	SourceFallback Source = "fallback"
)

// Decision is the routing outcome for one turn. It is computed
// deterministically from the classification result, the last-active handler,
// and the threshold.
type Decision struct {
	Handler      string
	Confidence   float64
	Reasoning    string
	Continuation bool
	Source       Source
}

// Context is the conversational context visible to classification.
type Context struct {
	LastHandler string
	RecentTurns []conversation.Turn
}

// Config controls the classifier.
type Config struct {
	Enabled             bool
	ConfidenceThreshold float64
	HistoryLimit        int
}

// Classifier maps a free-text query plus conversation context to a handler
// name using an LLM, degrading to the stickiness rule when the model is
// unavailable or returns garbage.
type Classifier struct {
	enabled        bool
	classifier     compose.Runnable[map[string]any, *schema.Message]
	names          map[string]bool
	handlersPrompt string
	threshold      float64
	historyLimit   int
}

// NewClassifier builds the classifier over the registered handler
// descriptors. A nil chatModel disables classification; Classify then always
// takes the fallback path.
func NewClassifier(ctx context.Context, chatModel model.BaseChatModel, descriptors []capability.Descriptor, cfg Config) (*Classifier, error) {
	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = 0.6
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 10
	}

	c := &Classifier{
		enabled:      cfg.Enabled && chatModel != nil,
		names:        make(map[string]bool, len(descriptors)),
		threshold:    threshold,
		historyLimit: historyLimit,
	}
	for _, d := range descriptors {
		c.names[d.Name] = true
	}

	if !c.enabled {
		return c, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(routingSystemPrompt),
		schema.UserMessage(routingUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile routing chain: %w", err)
	}
	c.classifier = runnable

	c.handlersPrompt = describeHandlers(descriptors)
	return c, nil
}

// Enabled reports whether LLM classification is active.
func (c *Classifier) Enabled() bool {
	return c != nil && c.enabled && c.classifier != nil
}

// Threshold returns the confidence threshold in effect.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Classify routes a query. It never returns an error: every failure of the
// underlying classification call degrades to the stickiness rule.
func (c *Classifier) Classify(ctx context.Context, query string, tc Context) Decision {
	if !c.Enabled() {
		return fallbackDecision(tc.LastHandler, "classifier disabled")
	}

	input := map[string]any{
		"handlers":     c.handlersPrompt,
		"history":      formatHistory(tc.RecentTurns, c.historyLimit),
		"last_handler": valueOrNone(tc.LastHandler),
		"query":        strings.TrimSpace(query),
	}

	msg, err := c.classifier.Invoke(ctx, input)
	if err != nil {
		log.Warn().Err(err).Msg("routing classifier invoke failed, using stickiness rule")
		return fallbackDecision(tc.LastHandler, "classification unavailable")
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return fallbackDecision(tc.LastHandler, "empty classification output")
	}

	payload, err := parseClassifierOutput(msg.Content)
	if err != nil {
		// The model answered but not in JSON. If the text still names exactly
		// one known handler, use it with moderate confidence.
		if name, ok := c.extractName(msg.Content); ok {
			return c.route(name, 0.7, "handler name extracted from text response", tc.LastHandler)
		}
		log.Warn().Err(err).Msg("routing classifier output unparseable, using stickiness rule")
		return fallbackDecision(tc.LastHandler, "malformed classification output")
	}

	name := strings.ToLower(strings.TrimSpace(payload.Intent))
	if !c.names[name] {
		name = Unknown
	}
	return c.route(name, payload.Confidence, payload.Reasoning, tc.LastHandler)
}

// route applies the routing policy: confidence beats stickiness, stickiness
// beats unknown, unknown only when there is nothing to continue.
func (c *Classifier) route(name string, confidence float64, reasoning, lastHandler string) Decision {
	confidence = clampConfidence(confidence)

	if name != Unknown && confidence >= c.threshold {
		return Decision{
			Handler:      name,
			Confidence:   confidence,
			Reasoning:    reasoning,
			Continuation: name == lastHandler,
			Source:       SourceModel,
		}
	}
	if lastHandler != "" {
		return Decision{
			Handler:      lastHandler,
			Confidence:   confidence,
			Reasoning:    reasoning,
			Continuation: true,
			Source:       SourceSticky,
		}
	}
	return Decision{
		Handler:    Unknown,
		Confidence: confidence,
		Reasoning:  reasoning,
		Source:     SourceModel,
	}
}

func fallbackDecision(lastHandler, reasoning string) Decision {
	if lastHandler != "" {
		return Decision{
			Handler:      lastHandler,
			Reasoning:    reasoning,
			Continuation: true,
			Source:       SourceFallback,
		}
	}
	return Decision{
		Handler:   Unknown,
		Reasoning: reasoning,
		Source:    SourceFallback,
	}
}

// extractName scans a non-JSON response for exactly one known handler name.
func (c *Classifier) extractName(content string) (string, bool) {
	lowered := strings.ToLower(content)
	found := ""
	for name := range c.names {
		if strings.Contains(lowered, name) {
			if found != "" {
				return "", false
			}
			found = name
		}
	}
	return found, found != ""
}

type classifierPayload struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// parseClassifierOutput pulls the JSON object out of the model response.
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func describeHandlers(descriptors []capability.Descriptor) string {
	var builder strings.Builder
	for i, d := range descriptors {
		if i > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString("- ")
		builder.WriteString(d.Name)
		builder.WriteString(" (intents: ")
		builder.WriteString(strings.Join(d.Intents, ", "))
		builder.WriteString("): ")
		builder.WriteString(d.Description)
	}
	return builder.String()
}

func formatHistory(turns []conversation.Turn, limit int) string {
	if len(turns) == 0 {
		return "no prior conversation"
	}
	if limit < 1 {
		limit = 1
	}
	start := len(turns) - limit
	if start < 0 {
		start = 0
	}

	var builder strings.Builder
	for i := start; i < len(turns); i++ {
		turn := turns[i]
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(string(turn.Role))
		builder.WriteString(": ")
		builder.WriteString(content)
	}
	if builder.Len() == 0 {
		return "no prior conversation"
	}
	return builder.String()
}

func valueOrNone(v string) string {
	if v == "" {
		return "none"
	}
	return v
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

const routingSystemPrompt = "You are a routing agent that decides which handler should serve a user query.\n" +
	"Available handlers:\n{handlers}\n\n" +
	"Your task: analyze the query, use the conversation context, and pick the single most appropriate handler.\n" +
	"Output requirements: return only a JSON object with exactly these fields: " +
	"intent (the handler name, or \"unknown\" if none fits), " +
	"confidence (a number between 0 and 1), " +
	"reasoning (one short sentence). No extra text.\n" +
	"Guidelines: set confidence 0.9-1.0 for very clear queries, 0.6-0.8 for moderately clear queries, " +
	"0.0-0.5 when the query is ambiguous. Short follow-ups that only refine the previous request " +
	"usually belong to the handler that served the last turn."

const routingUserPrompt = "Recent conversation:\n{history}\n\n" +
	"Handler that served the last turn: {last_handler}\n\n" +
	"User query: {query}\n\n" +
	"Return the JSON object."
