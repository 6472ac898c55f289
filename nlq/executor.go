package nlq

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	exposuregraph "github.com/exposure-graph/exposuregraph"
	"github.com/exposure-graph/exposuregraph/graph"
	"github.com/exposure-graph/exposuregraph/guard"
	"github.com/exposure-graph/exposuregraph/llm"
)

// State names the stage a request has reached. Transitions are strictly
// forward: RECEIVED → TRANSLATED → VALIDATED → EXECUTED → SUMMARIZED →
// RETURNED, with REJECTED and FAILED as terminal failure states.
type State string

const (
	StateReceived   State = "RECEIVED"
	StateTranslated State = "TRANSLATED"
	StateValidated  State = "VALIDATED"
	StateExecuted   State = "EXECUTED"
	StateSummarized State = "SUMMARIZED"
	StateReturned   State = "RETURNED"
	StateRejected   State = "REJECTED"
	StateFailed     State = "FAILED"
)

// summaryRowLimit bounds how many rows are handed to the summarizer.
const summaryRowLimit = 20

// Answer is the structured outcome of a natural-language query.
type Answer struct {
	// RequestID correlates logs, traces, and the answer.
	RequestID string `json:"request_id"`

	// Question is the original natural-language question.
	Question string `json:"question"`

	// State is the terminal state the request reached.
	State State `json:"state"`

	// QueryUsed is the validated query that was executed, including any
	// injected LIMIT. Empty when the request never reached execution.
	QueryUsed string `json:"query_used,omitempty"`

	// Rows holds the raw result rows.
	Rows []map[string]any `json:"rows,omitempty"`

	// AnswerText is the natural-language summary of the rows.
	AnswerText string `json:"answer_text,omitempty"`
}

// ExecutorConfig wires the executor's collaborators.
type ExecutorConfig struct {
	// Strategy translates questions into candidate queries.
	Strategy Strategy

	// Guard validates every candidate before execution.
	Guard *guard.Guard

	// Reader executes validated read statements.
	Reader graph.Reader

	// Summarizer generates the natural-language answer text. Optional; when
	// nil a counted fallback summary is used.
	Summarizer llm.Client

	// Logger receives per-stage events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Executor drives a question through the translation pipeline.
type Executor struct {
	strategy   Strategy
	guard      *guard.Guard
	reader     graph.Reader
	summarizer llm.Client
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewExecutor creates an executor from the given configuration.
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	const op = "nlq.NewExecutor"

	if cfg.Strategy == nil {
		return nil, exposuregraph.NewConfigurationError(op,
			fmt.Errorf("%w: translation strategy is required", exposuregraph.ErrInvalidConfig))
	}
	if cfg.Reader == nil {
		return nil, exposuregraph.NewConfigurationError(op,
			fmt.Errorf("%w: graph reader is required", exposuregraph.ErrInvalidConfig))
	}

	g := cfg.Guard
	if g == nil {
		g = guard.New(0, 0)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		strategy:   cfg.Strategy,
		guard:      g,
		reader:     cfg.Reader,
		summarizer: cfg.Summarizer,
		logger:     logger,
		tracer:     otel.Tracer("exposuregraph/nlq"),
	}, nil
}

// Ask answers a natural-language question against the graph.
//
// The returned Answer always carries the terminal state; when the error is
// non-nil its kind distinguishes a rejected question (translation or
// validation) from one that failed while running (execution or timeout).
// Failed and rejected requests are never summarized.
func (e *Executor) Ask(ctx context.Context, question string) (Answer, error) {
	requestID := uuid.NewString()
	logger := e.logger.With("request_id", requestID)

	ctx, span := e.tracer.Start(ctx, "nlq.ask", trace.WithAttributes(
		attribute.String("nlq.request_id", requestID),
		attribute.String("nlq.strategy", e.strategy.Name()),
	))
	defer span.End()

	answer := Answer{RequestID: requestID, Question: question, State: StateReceived}
	logger.Info("question received", "strategy", e.strategy.Name())

	validated, err := e.translateAndValidate(ctx, logger, question)
	if err != nil {
		answer.State = StateRejected
		span.SetStatus(codes.Error, "rejected")
		return answer, err
	}
	answer.State = StateValidated
	answer.QueryUsed = validated.Query

	rows, err := e.execute(ctx, logger, validated)
	if err != nil {
		answer.State = StateFailed
		span.SetStatus(codes.Error, "execution failed")
		return answer, err
	}
	answer.State = StateExecuted
	answer.Rows = rows

	text, err := e.summarize(ctx, logger, question, rows)
	if err != nil {
		// The deadline expired mid-pipeline; the partial rows are discarded.
		answer.State = StateFailed
		answer.Rows = nil
		span.SetStatus(codes.Error, "deadline expired")
		return answer, err
	}
	answer.AnswerText = text
	answer.State = StateSummarized

	logger.Info("question answered", "rows", len(rows))
	answer.State = StateReturned
	return answer, nil
}

// translateAndValidate runs the translate and validate stages, retrying at
// most once. The retry re-prompts the strategy with the reason the first
// candidate was unusable; a second failure makes the question untranslatable.
func (e *Executor) translateAndValidate(ctx context.Context, logger *slog.Logger, question string) (guard.Validated, error) {
	ctx, span := e.tracer.Start(ctx, "nlq.translate")
	defer span.End()

	feedback := ""
	for attempt := 0; attempt < 2; attempt++ {
		cypher, err := e.strategy.Translate(ctx, question, feedback)
		if err != nil {
			if exposuregraph.KindOf(err) == exposuregraph.KindTranslation && attempt == 0 {
				feedback = "the response could not be parsed as a query"
				logger.Warn("translation attempt failed, retrying", "error", err)
				continue
			}
			return guard.Validated{}, err
		}
		logger.Debug("candidate query generated", "attempt", attempt+1, "cypher", cypher)

		validated, err := e.guard.Validate(cypher)
		if err != nil {
			if attempt == 0 {
				feedback = guard.Reason(err)
				logger.Warn("candidate query rejected, retrying", "reason", feedback)
				continue
			}
			span.SetAttributes(attribute.String("nlq.rejection", guard.Reason(err)))
			return guard.Validated{}, exposuregraph.NewTranslationError("Executor.translate",
				fmt.Errorf("%w: %s", exposuregraph.ErrUntranslatable, guard.Reason(err))).
				WithContext(map[string]any{"question": question, "candidate": cypher})
		}

		span.SetAttributes(attribute.Int("nlq.attempts", attempt+1))
		return validated, nil
	}

	// Unreachable: the loop always returns.
	return guard.Validated{}, exposuregraph.NewTranslationError("Executor.translate", exposuregraph.ErrUntranslatable)
}

// execute runs the validated statement through the read-only store surface.
func (e *Executor) execute(ctx context.Context, logger *slog.Logger, v guard.Validated) ([]map[string]any, error) {
	ctx, span := e.tracer.Start(ctx, "nlq.execute")
	defer span.End()

	rows, err := e.reader.RunRead(ctx, v.Query, nil, v.RowCap, v.Timeout)
	if err != nil {
		logger.Error("query execution failed", "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("nlq.rows", len(rows)))
	return rows, nil
}

// summarize produces the answer text. A summarizer fault on a live context
// is non-fatal: the rows already exist, so a counted fallback is returned
// instead. A dead context is fatal; the caller's deadline expired, so no
// answer may be returned at all.
func (e *Executor) summarize(ctx context.Context, logger *slog.Logger, question string, rows []map[string]any) (string, error) {
	ctx, span := e.tracer.Start(ctx, "nlq.summarize")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return "", exposuregraph.NewTimeoutError("Executor.summarize", err)
	}
	if e.summarizer == nil {
		return basicSummary(rows), nil
	}

	prompt := fmt.Sprintf("Question: %s\n\nResults: No data found.", question)
	if len(rows) > 0 {
		prompt = fmt.Sprintf("Question: %s\n\nResults:\n%s", question, formatRows(rows))
	}

	text, err := e.summarizer.Complete(ctx, summarySystemPrompt, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return "", exposuregraph.NewTimeoutError("Executor.summarize", ctx.Err())
		}
		logger.Warn("summarization failed, using fallback", "error", err)
		return basicSummary(rows), nil
	}
	return strings.TrimSpace(text), nil
}

// formatRows renders rows as numbered key-value lines for the summarizer,
// truncating long values and capping the row count.
func formatRows(rows []map[string]any) string {
	if len(rows) > summaryRowLimit {
		rows = rows[:summaryRowLimit]
	}

	var b strings.Builder
	for i, row := range rows {
		parts := make([]string, 0, len(row))
		for _, key := range sortedKeys(row) {
			parts = append(parts, fmt.Sprintf("%s: %s", key, clip(fmt.Sprint(row[key]), 100)))
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.Join(parts, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// sortedKeys gives stable row rendering regardless of map iteration order.
func sortedKeys(row map[string]any) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func basicSummary(rows []map[string]any) string {
	switch len(rows) {
	case 0:
		return "No results found for this query."
	case 1:
		return "Found 1 result."
	default:
		return fmt.Sprintf("Found %d results.", len(rows))
	}
}
