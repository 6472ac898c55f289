package nlq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exposuregraph "github.com/exposure-graph/exposuregraph"
	"github.com/exposure-graph/exposuregraph/guard"
	"github.com/exposure-graph/exposuregraph/llm"
)

// scriptedStrategy returns candidates in order, recording the feedback it
// was called with.
type scriptedStrategy struct {
	candidates []string
	errs       []error
	feedbacks  []string
	calls      int
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) Translate(ctx context.Context, question, feedback string) (string, error) {
	i := s.calls
	s.calls++
	s.feedbacks = append(s.feedbacks, feedback)
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.candidates) {
		return s.candidates[i], nil
	}
	return "", errors.New("no more candidates")
}

// fakeReader records the statement it was asked to run.
type fakeReader struct {
	rows     []map[string]any
	err      error
	gotQuery string
	gotCap   int
}

func (r *fakeReader) RunRead(ctx context.Context, cypher string, params map[string]any, rowCap int, timeout time.Duration) ([]map[string]any, error) {
	r.gotQuery = cypher
	r.gotCap = rowCap
	if r.err != nil {
		return nil, r.err
	}
	return r.rows, nil
}

func newTestExecutor(t *testing.T, strategy Strategy, reader *fakeReader) *Executor {
	t.Helper()
	exec, err := NewExecutor(ExecutorConfig{
		Strategy:   strategy,
		Guard:      guard.New(10, time.Second),
		Reader:     reader,
		Summarizer: llm.NewMock(),
	})
	require.NoError(t, err)
	return exec
}

func TestAskHappyPath(t *testing.T) {
	strategy := &scriptedStrategy{candidates: []string{"MATCH (w:WebService) RETURN w.url AS url"}}
	reader := &fakeReader{rows: []map[string]any{
		{"url": "https://staging.example.com"},
		{"url": "https://www.example.com"},
	}}

	exec := newTestExecutor(t, strategy, reader)
	answer, err := exec.Ask(context.Background(), "show me the web services")
	require.NoError(t, err)

	assert.Equal(t, StateReturned, answer.State)
	assert.NotEmpty(t, answer.RequestID)
	assert.Len(t, answer.Rows, 2)
	assert.NotEmpty(t, answer.AnswerText)

	// The guard injected a LIMIT, and that bounded query is what ran and
	// what the answer reports.
	assert.Equal(t, "MATCH (w:WebService) RETURN w.url AS url LIMIT 10", answer.QueryUsed)
	assert.Equal(t, answer.QueryUsed, reader.gotQuery)
	assert.Equal(t, 10, reader.gotCap)
}

func TestAskRetriesAfterRejection(t *testing.T) {
	strategy := &scriptedStrategy{candidates: []string{
		"MATCH (w:WebService) SET w.risk_score = 0 RETURN w.url",
		"MATCH (w:WebService) RETURN w.url AS url LIMIT 5",
	}}
	reader := &fakeReader{rows: []map[string]any{{"url": "https://api.example.com"}}}

	exec := newTestExecutor(t, strategy, reader)
	answer, err := exec.Ask(context.Background(), "reset then show services")
	require.NoError(t, err)

	assert.Equal(t, StateReturned, answer.State)
	assert.Equal(t, 2, strategy.calls)
	// The retry carried the rejection reason as feedback.
	require.Len(t, strategy.feedbacks, 2)
	assert.Empty(t, strategy.feedbacks[0])
	assert.Contains(t, strategy.feedbacks[1], "SET")
}

func TestAskUntranslatableAfterSecondRejection(t *testing.T) {
	strategy := &scriptedStrategy{candidates: []string{
		"CREATE (n:Domain {name: 'evil.com'})",
		"DELETE n",
	}}
	reader := &fakeReader{}

	exec := newTestExecutor(t, strategy, reader)
	answer, err := exec.Ask(context.Background(), "break things")

	require.Error(t, err)
	assert.Equal(t, StateRejected, answer.State)
	assert.True(t, errors.Is(err, exposuregraph.ErrUntranslatable))
	assert.Equal(t, exposuregraph.KindTranslation, exposuregraph.KindOf(err))

	// Nothing reached the store and nothing was summarized.
	assert.Empty(t, reader.gotQuery)
	assert.Empty(t, answer.AnswerText)
	assert.Empty(t, answer.Rows)
}

func TestAskRetriesAfterUnparseableResponse(t *testing.T) {
	strategy := &scriptedStrategy{
		errs:       []error{exposuregraph.NewTranslationError("test", errors.New("no query in response"))},
		candidates: []string{"", "MATCH (d:Domain) RETURN d.name AS domain"},
	}
	reader := &fakeReader{rows: []map[string]any{{"domain": "example.com"}}}

	exec := newTestExecutor(t, strategy, reader)
	answer, err := exec.Ask(context.Background(), "list domains")
	require.NoError(t, err)
	assert.Equal(t, StateReturned, answer.State)
	assert.Equal(t, 2, strategy.calls)
}

func TestAskExecutionFailureIsNotSummarized(t *testing.T) {
	strategy := &scriptedStrategy{candidates: []string{"MATCH (w:WebService) RETURN w.url AS url"}}
	reader := &fakeReader{err: exposuregraph.NewExecutionError("Store.RunRead", exposuregraph.ErrStoreUnavailable)}

	exec := newTestExecutor(t, strategy, reader)
	answer, err := exec.Ask(context.Background(), "show services")

	require.Error(t, err)
	assert.Equal(t, StateFailed, answer.State)
	assert.Equal(t, exposuregraph.KindExecution, exposuregraph.KindOf(err))
	assert.Empty(t, answer.AnswerText)
}

func TestAskRejectionDistinguishableFromFailure(t *testing.T) {
	rejected := &scriptedStrategy{candidates: []string{"DROP everything", "MERGE (n)"}}
	execRejected := newTestExecutor(t, rejected, &fakeReader{})
	_, errRejected := execRejected.Ask(context.Background(), "destroy")

	failed := &scriptedStrategy{candidates: []string{"MATCH (n) RETURN n LIMIT 1"}}
	execFailed := newTestExecutor(t, failed, &fakeReader{err: exposuregraph.NewExecutionError("x", errors.New("boom"))})
	_, errFailed := execFailed.Ask(context.Background(), "anything")

	assert.NotEqual(t, exposuregraph.KindOf(errRejected), exposuregraph.KindOf(errFailed))
}

func TestAskFallbackSummaryWithoutSummarizer(t *testing.T) {
	strategy := &scriptedStrategy{candidates: []string{"MATCH (d:Domain) RETURN d.name AS domain"}}
	reader := &fakeReader{rows: []map[string]any{{"domain": "a.com"}, {"domain": "b.com"}, {"domain": "c.com"}}}

	exec, err := NewExecutor(ExecutorConfig{
		Strategy: strategy,
		Reader:   reader,
	})
	require.NoError(t, err)

	answer, err := exec.Ask(context.Background(), "list domains")
	require.NoError(t, err)
	assert.Equal(t, "Found 3 results.", answer.AnswerText)
}

func TestAskSummarizerFailureFallsBack(t *testing.T) {
	strategy := &scriptedStrategy{candidates: []string{"MATCH (d:Domain) RETURN d.name AS domain"}}
	reader := &fakeReader{rows: []map[string]any{{"domain": "a.com"}}}

	exec, err := NewExecutor(ExecutorConfig{
		Strategy:   strategy,
		Reader:     reader,
		Summarizer: &failingClient{err: errors.New("model offline")},
	})
	require.NoError(t, err)

	answer, err := exec.Ask(context.Background(), "list domains")
	require.NoError(t, err)
	assert.Equal(t, StateReturned, answer.State)
	assert.Equal(t, "Found 1 result.", answer.AnswerText)
}

// blockingClient parks in Complete until the context dies, as a slow model
// would when the caller's deadline expires mid-request.
type blockingClient struct{}

func (c *blockingClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}
func (c *blockingClient) CheckConnection(ctx context.Context) error { return nil }
func (c *blockingClient) Model() string                             { return "blocking" }

func TestAskDeadlineExpiryDiscardsPartialResult(t *testing.T) {
	strategy := &scriptedStrategy{candidates: []string{"MATCH (d:Domain) RETURN d.name AS domain"}}
	reader := &fakeReader{rows: []map[string]any{{"domain": "a.com"}}}

	exec, err := NewExecutor(ExecutorConfig{
		Strategy:   strategy,
		Reader:     reader,
		Summarizer: &blockingClient{},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	answer, err := exec.Ask(ctx, "list domains")
	require.Error(t, err)
	assert.Equal(t, exposuregraph.KindTimeout, exposuregraph.KindOf(err))
	assert.Equal(t, StateFailed, answer.State)

	// The rows were fetched before the deadline expired, but an expired
	// request returns no partial data.
	assert.Empty(t, answer.Rows)
	assert.Empty(t, answer.AnswerText)
}

func TestNewExecutorValidation(t *testing.T) {
	_, err := NewExecutor(ExecutorConfig{Reader: &fakeReader{}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, exposuregraph.ErrInvalidConfig))

	_, err = NewExecutor(ExecutorConfig{Strategy: NewStaticStrategy()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, exposuregraph.ErrInvalidConfig))
}

func TestFormatRows(t *testing.T) {
	rows := []map[string]any{
		{"url": "https://a.example.com", "risk_score": 75},
		{"url": "https://b.example.com", "risk_score": 50},
	}
	out := formatRows(rows)
	assert.Equal(t, "1. risk_score: 75, url: https://a.example.com\n2. risk_score: 50, url: https://b.example.com", out)
}

func TestFormatRowsCapsRowCount(t *testing.T) {
	rows := make([]map[string]any, summaryRowLimit+10)
	for i := range rows {
		rows[i] = map[string]any{"n": i}
	}
	out := formatRows(rows)
	assert.Contains(t, out, "20. ")
	assert.NotContains(t, out, "21. ")
}
