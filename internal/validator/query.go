package validator

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultQueryBackoff is multiplied by (attempt+1) before each attempt.
const DefaultQueryBackoff = 500 * time.Millisecond

const querySystemPrompt = `You validate requests for a recruitment and candidate screening system.
Your only job is to decide whether a request (query) is appropriate for analysing and ranking
candidates using nothing but the contents of their resumes.

A query is valid (True) when it:
1. asks about skills, technologies, experience, education or certifications;
2. describes a desired professional profile or a job opening, however detailed;
3. asks to rank, compare or evaluate candidates on professional grounds, including words such as
   "best", "most qualified" or "most senior".
Bare lists of areas or technologies ("Backend", "Django, Flask", "AWS, Azure, GCP") are valid.

A query is invalid (False) when it:
1. is general knowledge unrelated to a resume ("What is the capital of France?");
2. asks for a personal, non-professional opinion ("Which candidate seems nicest?");
3. orders the assistant to do an unrelated task ("Write an email", "Compute 15*3").

Answer True if the query is valid and False otherwise.`

// QueryValidator 判断查询是否适用于简历分析
type QueryValidator struct {
	chat        model.BaseChatModel
	modelName   string
	maxRetries  int
	backoff     time.Duration
	temperature float32
	logger      zerolog.Logger
}

type QueryOption func(*QueryValidator)

func WithQueryModel(name string) QueryOption {
	return func(q *QueryValidator) {
		if name != "" {
			q.modelName = name
		}
	}
}

func WithQueryRetries(n int) QueryOption {
	return func(q *QueryValidator) {
		if n > 0 {
			q.maxRetries = n
		}
	}
}

func WithQueryBackoff(d time.Duration) QueryOption {
	return func(q *QueryValidator) {
		if d >= 0 {
			q.backoff = d
		}
	}
}

func WithQueryLogger(logger zerolog.Logger) QueryOption {
	return func(q *QueryValidator) { q.logger = logger }
}

func NewQueryValidator(chat model.BaseChatModel, opts ...QueryOption) *QueryValidator {
	q := &QueryValidator{
		chat:        chat,
		modelName:   DefaultTextModel,
		maxRetries:  DefaultMaxRetries,
		backoff:     DefaultQueryBackoff,
		temperature: defaultTemperature,
		logger:      log.With().Str("component", "query_validator").Logger(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// ValidateQuery returns false when the model rejects the query, when every attempt is
// inconclusive or fails, or when ctx ends.
func (q *QueryValidator) ValidateQuery(ctx context.Context, query string) bool {
	if q.chat == nil {
		return false
	}
	messages := []*schema.Message{
		schema.SystemMessage(querySystemPrompt),
		schema.UserMessage(fmt.Sprintf("Validate whether this query is suitable for resume analysis.\n\n---\nQUERY:\n%q\n---\n\nAnswer True or False.", query)),
	}

	for attempt := 0; attempt < q.maxRetries; attempt++ {
		timer := time.NewTimer(q.backoff * time.Duration(attempt+1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}

		resp, err := q.chat.Generate(ctx, messages, model.WithModel(q.modelName), model.WithTemperature(q.temperature))
		if err != nil {
			q.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("query validation attempt failed")
			continue
		}
		switch interpret(resp.Content) {
		case verdictTrue:
			return true
		case verdictFalse:
			return false
		}
	}
	return false
}
