// Package nlq turns natural-language questions into guarded graph queries
// and answers.
//
// A Strategy produces candidate Cypher from a question. The Executor drives
// the full pipeline: translate, validate through the guard, execute through
// the read-only store surface, summarize, return. Every request moves through
// an explicit state machine and carries a correlation ID, so failures name
// the exact stage that produced them.
package nlq

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	exposuregraph "github.com/exposure-graph/exposuregraph"
	"github.com/exposure-graph/exposuregraph/llm"
)

// Strategy translates a question into candidate Cypher. feedback is empty on
// the first attempt; on the single retry it carries the reason the previous
// candidate was unusable.
type Strategy interface {
	Translate(ctx context.Context, question, feedback string) (string, error)
	Name() string
}

// ModelStrategy generates Cypher with a language model, prompted with the
// graph schema and few-shot examples.
type ModelStrategy struct {
	client llm.Client
}

// NewModelStrategy creates a model-backed translation strategy.
func NewModelStrategy(client llm.Client) *ModelStrategy {
	return &ModelStrategy{client: client}
}

// Name identifies the strategy in logs and answers.
func (s *ModelStrategy) Name() string {
	return "model:" + s.client.Model()
}

// Translate prompts the model and extracts the Cypher from its response.
func (s *ModelStrategy) Translate(ctx context.Context, question, feedback string) (string, error) {
	const op = "ModelStrategy.Translate"

	prompt := question
	if feedback != "" {
		prompt += fmt.Sprintf(correctiveSuffix, feedback)
	}

	response, err := s.client.Complete(ctx, cypherSystemPrompt, prompt)
	if err != nil {
		return "", exposuregraph.NewTranslationError(op, err)
	}

	cypher := ExtractCypher(response)
	if cypher == "" {
		return "", exposuregraph.NewTranslationError(op,
			fmt.Errorf("model response contained no query")).
			WithContext(map[string]any{"response": clip(response, 200)})
	}
	return cypher, nil
}

// fencedBlock matches a markdown code fence, optionally tagged cypher.
var fencedBlock = regexp.MustCompile("(?s)```(?:cypher)?\\s*(.*?)```")

// cypherStarters are clause keywords a query line may begin with.
var cypherStarters = []string{"MATCH", "WHERE", "RETURN", "ORDER", "LIMIT", "WITH", "OPTIONAL", "UNWIND", "CALL"}

// cypherMarkers are tokens that mark a line as query continuation rather
// than prose.
var cypherMarkers = []string{"AS", "DESC", "ASC", "AND", "OR", "NOT", "IN", "CONTAINS"}

// ExtractCypher pulls a Cypher query out of a model response that may wrap
// it in markdown fences or surround it with prose. It returns the fenced
// content when present, otherwise the run of query-shaped lines starting at
// the first MATCH, otherwise the whole trimmed response.
func ExtractCypher(response string) string {
	if strings.Contains(response, "```") {
		if m := fencedBlock.FindStringSubmatch(response); m != nil {
			return strings.TrimSpace(m[1])
		}
	}

	var queryLines []string
	inQuery := false
	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)

		if strings.HasPrefix(upper, "MATCH") {
			inQuery = true
		}
		if !inQuery {
			continue
		}
		if line != "" && !startsWithAny(upper, cypherStarters) && !strings.HasPrefix(line, "//") {
			if !containsAny(upper, cypherMarkers) {
				break
			}
		}
		queryLines = append(queryLines, line)
	}

	if len(queryLines) > 0 {
		return strings.Join(queryLines, " ")
	}
	return strings.TrimSpace(response)
}

func startsWithAny(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
