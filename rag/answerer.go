package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"policyrag/model"
	"policyrag/store"
	"policyrag/types"
)

// SystemPrompt fixes the citation contract: the model cites context
// entries by their [Source N] marker, which maps 1:1 onto the returned
// Answer.Sources by 1-based index.
const SystemPrompt = `You are a helpful assistant that answers questions about banking regulations and policies using official policy documents.

Your role:
1. Answer questions using ONLY the provided context from the policy documents
2. If the answer is not in the context, clearly state: "I could not find this information in the policy documents."
3. Always cite your sources using [Source N] notation
4. Be precise and factual - these are regulatory documents
5. If information seems outdated or you are uncertain, mention that the user should verify with the original document

Format guidelines:
- Start with a direct answer when possible
- Use [Source 1], [Source 2], etc. to cite which context you are using
- Include relevant page numbers when citing`

const snippetLength = 300

// Answerer runs the per-query pipeline: embed, retrieve, build the
// cited context, generate, assemble.
type Answerer struct {
	store     store.DBStorer
	embedder  model.EmbedderInterface
	generator model.Generator
	topK      int
}

func NewAnswerer(st store.DBStorer, embedder model.EmbedderInterface, generator model.Generator, topK int) *Answerer {
	if topK <= 0 {
		topK = 5
	}
	return &Answerer{
		store:     st,
		embedder:  embedder,
		generator: generator,
		topK:      topK,
	}
}

// Query answers a question with source provenance. Retrieval failures
// propagate as-is; embedding and generation failures come back as
// AnswerGenerationError so the caller can tell "nothing found" apart
// from "found but could not answer", and can still show the sources.
func (a *Answerer) Query(ctx context.Context, question string) (*types.Answer, error) {
	return a.QueryTopK(ctx, question, a.topK)
}

func (a *Answerer) QueryTopK(ctx context.Context, question string, k int) (*types.Answer, error) {
	if k <= 0 {
		k = a.topK
	}

	stats, err := a.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if stats.ChunkCount == 0 {
		return nil, types.EmptyIndexError{}
	}

	queryVec, err := a.embedder.Embed(question)
	if err != nil {
		return nil, types.AnswerGenerationError{Stage: "embed", Err: err}
	}

	chunks, err := a.store.Search(ctx, queryVec, k)
	if err != nil {
		return nil, err
	}
	results := Rank(chunks)

	contextStr, sources := BuildContext(results)

	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s",
		strings.TrimSuffix(contextStr, "\n\n"), question)
	output, err := a.generator.Generate(ctx, SystemPrompt, prompt)
	if err != nil {
		return nil, types.AnswerGenerationError{Stage: "generate", Sources: sources, Err: err}
	}

	return &types.Answer{
		Query:     question,
		Answer:    output,
		Sources:   sources,
		Timestamp: time.Now(),
	}, nil
}

// Rank turns search hits into ranked results in store order, which is
// ascending distance with stable ties.
func Rank(chunks []types.Chunk) []types.RetrievalResult {
	results := make([]types.RetrievalResult, len(chunks))
	for i, ch := range chunks {
		results[i] = types.RetrievalResult{
			Rank:     i + 1,
			Chunk:    ch,
			Distance: ch.Distance,
			Score:    1 - ch.Distance,
		}
	}
	return results
}

// BuildContext renders the retrieved chunks into the prompt context and
// the matching source list. Entry i carries the [Source i+1] marker and
// sources[i].Index == i+1; the generated answer's citations dereference
// through exactly this ordering.
func BuildContext(results []types.RetrievalResult) (string, []types.Source) {
	var b strings.Builder
	sources := make([]types.Source, 0, len(results))

	for _, res := range results {
		fmt.Fprintf(&b, "[Source %d] %s (Page %d)\n%s\n\n",
			res.Rank, res.Chunk.Title, res.Chunk.PageNumber, res.Chunk.Content)

		sources = append(sources, types.Source{
			Index:     res.Rank,
			Title:     res.Chunk.Title,
			Page:      res.Chunk.PageNumber,
			SourceURL: res.Chunk.SourceURL,
			Snippet:   snippet(res.Chunk.Content),
			FullText:  res.Chunk.Content,
			Relevance: res.Score,
		})
	}
	return b.String(), sources
}

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetLength {
		return text
	}
	return string(runes[:snippetLength]) + "..."
}
