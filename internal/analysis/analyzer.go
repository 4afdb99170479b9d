// Package analysis scores resume text with an LLM.
package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"resume-analyzer/internal/types"
)

const (
	DefaultModel       = "llama3-8b-8192"
	DefaultTemperature = 0.2
	DefaultMaxRetries  = 3
)

const systemPrompt = "You are a senior technical recruiter and an expert in resume analysis."

const queryTemplate = `You are a highly specialised AI talent analyst. Evaluate how well ONE resume matches a job
requirement or professional profile, producing a score, a detailed analysis and relevant remarks.
Base the analysis strictly on the data provided.

Method:
1. Interpret the requirement. If it is a detailed job description, list its key requirements
   (technologies, frameworks, languages, years of experience, certifications). If it is short or
   generic ("Backend", "Mid-level Frontend", "Who is the best DevOps candidate?"), infer the
   essential requirements of that profile.
2. Analyse the resume for direct and indirect evidence of each requirement, paying attention to
   years of experience with each technology and to the context of the projects described.
3. Build the feedback: the score reflects overall alignment and the summary explains it, listing
   strengths and gaps.

Scoring:
  8.0 - 10.0  strong alignment, meets all or nearly all essential requirements
  6.0 - 7.9   good alignment, meets most important requirements with some gaps
  4.0 - 5.9   partial alignment, lacks knowledge in crucial points
  0.0 - 3.9   low alignment, meets few or none of the essential requirements

Your answer MUST follow exactly this structure:

Feedback:
    Score: (float from 0.0 to 10.0) how well the candidate matches the requirement
    Summary: (string, one paragraph on a single line) detailed assessment of strengths and weaknesses and what is missing for an ideal match

Extra_comments:
    Any extra comment about the resume.

---
REQUIREMENT:
%s
---
RESUME TEXT:
%s
---

Remember: keep the Feedback structure with Score and Summary, followed by Extra_comments, or the answer will be rejected.`

const noQueryTemplate = `Write an analytical summary of the resume below.
Your answer MUST follow exactly this structure:

Feedback:
    Score: (string, the candidate's seniority: junior, mid-level or senior)
    Summary: (string, one paragraph on a single line) detailed summary of the professional profile, relevant experience, technical skills and seniority

Extra comments:
    Any extra comment on strengths, areas of expertise or other relevant observations.

---
RESUME TEXT:
%s
---

Remember: keep the Feedback structure with Score and Summary, followed by Extra comments, or the answer will be rejected.`

// Analyzer 调用 LLM 对简历文本打分
type Analyzer struct {
	chat        model.BaseChatModel
	modelName   string
	temperature float32
	maxRetries  int
	logger      zerolog.Logger
}

type Option func(*Analyzer)

func WithModel(name string) Option {
	return func(a *Analyzer) {
		if name != "" {
			a.modelName = name
		}
	}
}

func WithTemperature(t float32) Option {
	return func(a *Analyzer) { a.temperature = t }
}

func WithMaxRetries(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxRetries = n
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(a *Analyzer) { a.logger = logger }
}

func NewAnalyzer(chat model.BaseChatModel, opts ...Option) *Analyzer {
	a := &Analyzer{
		chat:        chat,
		modelName:   DefaultModel,
		temperature: DefaultTemperature,
		maxRetries:  DefaultMaxRetries,
		logger:      log.With().Str("component", "analyzer").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BuildMessages renders the prompt for query mode (query != "") or no-query mode.
func BuildMessages(text, query string) []*schema.Message {
	var user string
	if strings.TrimSpace(query) != "" {
		user = fmt.Sprintf(queryTemplate, query, text)
	} else {
		user = fmt.Sprintf(noQueryTemplate, text)
	}
	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(user),
	}
}

// Analyze re-issues the same request until a reply parses or the retry budget runs out.
func (a *Analyzer) Analyze(ctx context.Context, text, query string) types.AnalysisResult {
	if a.chat == nil {
		return types.AnalysisError("no chat model configured")
	}
	queryMode := strings.TrimSpace(query) != ""
	messages := BuildMessages(text, query)

	lastReason := "no attempts made"
	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			lastReason = err.Error()
			break
		}

		resp, err := a.chat.Generate(ctx, messages, model.WithModel(a.modelName), model.WithTemperature(a.temperature))
		if err != nil {
			lastReason = err.Error()
			a.logger.Warn().Err(err).Int("attempt", attempt).Msg("analysis request failed")
			continue
		}

		parsed, err := ParseResponse(resp.Content, queryMode)
		if err != nil {
			lastReason = err.Error()
			a.logger.Debug().Err(err).Int("attempt", attempt).Msg("analysis reply rejected")
			continue
		}

		if queryMode {
			return types.ScoredAnalysis(parsed.Score, parsed.Summary)
		}
		return types.CategorizedAnalysis(parsed.Level, parsed.Summary)
	}

	return types.AnalysisError(fmt.Sprintf("analysis failed after %d attempts: %s", a.maxRetries, lastReason))
}
