package agent

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/model"
)

// llmCallLogger is implemented by loggers with a dedicated LLM call record.
type llmCallLogger interface {
	LogLLMCall(model string, tokens int, dur time.Duration, success bool, err error)
}

// Writer streams a new draft version from the generator. Fragments are
// emitted as token events tagged with the version being generated; the draft
// is committed only once the generation finished. A cancelled or failed
// generation leaves the drafts untouched.
func Writer(opts Options) core.AgentFunc {
	return func(ctx context.Context, ac *core.AgentContext, p core.Prospect) (core.Prospect, error) {
		if ac.Generator == nil {
			return p, core.NewTerminalError(core.StageWriter, "no generator configured", nil)
		}
		if ac.Limiter != nil {
			if err := ac.Limiter.Increment(); err != nil {
				return p, core.NewTerminalError(core.StageWriter, "generation limit reached", err)
			}
		}

		version := p.DraftVersion() + 1
		now := ac.Now()

		data := PromptData{
			Company:      p.Company,
			Pains:        p.Company.Pains,
			Facts:        topFacts(p, now, 3),
			DraftVersion: version,
		}
		if c, ok := p.PrimaryContact(); ok {
			data.Contact = c
		}
		if p.FitScore != nil {
			data.Score = p.FitScore.Value
		}

		prompt, err := opts.Prompt.Resolve(ac, data)
		if err != nil {
			return p, core.NewTerminalError(core.StageWriter, "prompt rendering failed", err)
		}

		genCtx := ctx
		if opts.LLMTimeout > 0 {
			var cancel context.CancelFunc
			genCtx, cancel = context.WithTimeout(ctx, opts.LLMTimeout)
			defer cancel()
		}

		req := model.Request{
			Instructions: opts.Instructions,
			Prompt:       prompt,
			MaxTokens:    opts.MaxTokens,
			Temperature:  opts.Temperature,
		}

		start := time.Now()
		fragments := 0
		text, err := model.Collect(genCtx, ac.Generator, req, func(fragment string) {
			fragments++
			ac.Emit(ctx, core.NewTokenEvent(ac.RunID, p.ID, version, fragment))
		})
		if l, ok := ac.Logger().(llmCallLogger); ok {
			l.LogLLMCall(ac.Generator.Info().Name, fragments, time.Since(start), err == nil, err)
		}
		if err != nil {
			return p, generationError(ctx, err)
		}

		subject, body := parseDraft(text, p.Company.Name)
		if ac.Compliance != nil {
			body = appendFooter(body, ac.Compliance.Footer(p))
		}

		draft := core.Draft{
			Version:   version,
			Subject:   subject,
			Body:      body,
			Model:     ac.Generator.Info().Name,
			CreatedAt: now,
		}

		if ac.Embedder != nil && ac.Index != nil {
			if err := indexDraft(ctx, ac, opts, p.ID, &draft); err != nil {
				return p, err
			}
		}

		p.Drafts = append(p.Drafts, draft)
		return p, nil
	}
}

// generationError maps a failed generation to a stage error. Cancellation is
// terminal; timeouts, including an expired stage deadline, and transient
// provider failures are retried.
func generationError(stageCtx context.Context, err error) error {
	switch {
	case errors.Is(stageCtx.Err(), context.Canceled):
		return core.NewTerminalError(core.StageWriter, "cancelled", stageCtx.Err())
	case errors.Is(stageCtx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return core.NewRetryableError(core.StageWriter, "generation timed out", err)
	case errors.Is(err, model.ErrTransient):
		return core.NewRetryableError(core.StageWriter, "generation failed", err)
	case errors.Is(err, model.ErrIncomplete):
		return core.NewRetryableError(core.StageWriter, "generation interrupted", err)
	}
	return core.NewTerminalError(core.StageWriter, "generation failed", err)
}

// parseDraft splits "Subject: ...\nBody: ..." output. Unparseable output
// becomes the body under a default subject.
func parseDraft(text, company string) (subject, body string) {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "Body:"); i >= 0 && strings.Contains(text[:i], "Subject:") {
		head := text[:i]
		subject = strings.TrimSpace(head[strings.Index(head, "Subject:")+len("Subject:"):])
		body = strings.TrimSpace(text[i+len("Body:"):])
	} else {
		body = text
	}

	if subject == "" {
		subject = fmt.Sprintf("Improve %s's Customer Experience", company)
	}
	if body == "" {
		body = "I'd like to discuss how we can help improve your customer experience."
	}
	return subject, body
}

func appendFooter(body, footer string) string {
	footer = strings.TrimSpace(footer)
	if footer == "" || strings.Contains(strings.ToLower(body), strings.ToLower(footer)) {
		return body
	}
	return body + "\n\n" + footer
}

// indexDraft flags near duplicates of other prospects' drafts and records the
// draft embedding, superseding the previous version of this prospect.
func indexDraft(ctx context.Context, ac *core.AgentContext, opts Options, prospectID string, d *core.Draft) error {
	vec, err := embed(ctx, ac, d.Subject+"\n"+d.Body)
	if err != nil {
		return classify(core.StageWriter, "embedding failed", err)
	}

	hits, err := ac.Index.SearchWhere(ctx, vec, 2, map[string]string{MetaKind: KindDraft})
	if err != nil {
		return core.NewEngineFault("vector", err)
	}
	for _, h := range hits {
		if h.Metadata[MetaProspectID] == prospectID {
			continue
		}
		if opts.DuplicateThreshold > 0 && h.Score >= opts.DuplicateThreshold {
			d.SimilarTo = h.Metadata[MetaProspectID]
			d.Similarity = h.Score
			ac.LogWarn("near duplicate draft prospect_id=%s similar_to=%s score=%.3f", prospectID, d.SimilarTo, h.Score)
		}
		break
	}

	meta := map[string]string{
		MetaKind:       KindDraft,
		MetaProspectID: prospectID,
		MetaVersion:    strconv.Itoa(d.Version),
	}
	if err := ac.Index.Insert(ctx, "draft:"+prospectID, vec, meta); err != nil {
		return core.NewEngineFault("vector", err)
	}
	return nil
}
