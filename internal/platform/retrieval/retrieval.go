// Package retrieval supplies supporting passages for a triage query. The
// current implementation ranks a seeded orthopedic passage corpus with
// Postgres full-text search; the orchestrator only depends on the Retriever
// contract and treats any failure as "no sources found".
package retrieval

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Hints narrow the search when the conversation already knows the body part
// or a candidate injury.
type Hints struct {
	BodyPartID string
	InjuryID   string
}

// Source identifies where a retrieved passage came from.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// Result is the retrieval collaborator response. RAGUsed reports whether the
// returned context is strong enough to ground generation on.
type Result struct {
	Context       string   `json:"context"`
	Sources       []Source `json:"sources"`
	CoverageScore float64  `json:"coverage_score"`
	RAGUsed       bool     `json:"rag_used"`
}

// Degraded is returned whenever retrieval is unavailable; generation then
// proceeds ungrounded and the response is labeled unverified.
func Degraded() Result {
	return Result{RAGUsed: false}
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, hints Hints) (Result, error)
}

// PGRetriever ranks passages with tsvector full-text search.
type PGRetriever struct {
	pool    *pgxpool.Pool
	minRank float64
	logger  zerolog.Logger
}

func NewPGRetriever(pool *pgxpool.Pool, minRank float64, logger zerolog.Logger) *PGRetriever {
	return &PGRetriever{pool: pool, minRank: minRank, logger: logger}
}

const maxPassages = 4

func (r *PGRetriever) Retrieve(ctx context.Context, query string, hints Hints) (Result, error) {
	terms := searchTerms(query, hints)
	if terms == "" {
		return Degraded(), nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT title, url, body, ts_rank(search_vector, websearch_to_tsquery('english', $1)) AS rank
		FROM passage
		WHERE search_vector @@ websearch_to_tsquery('english', $1)
		ORDER BY rank DESC
		LIMIT $2`, terms, maxPassages)
	if err != nil {
		return Degraded(), err
	}
	defer rows.Close()

	var (
		chunks  []string
		sources []Source
		topRank float64
	)
	for rows.Next() {
		var (
			title, body string
			url         *string
			rank        float64
		)
		if err := rows.Scan(&title, &url, &body, &rank); err != nil {
			return Degraded(), err
		}
		if rank > topRank {
			topRank = rank
		}
		chunks = append(chunks, body)
		src := Source{Title: title}
		if url != nil {
			src.URL = *url
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return Degraded(), err
	}

	if len(chunks) == 0 || topRank < r.minRank {
		r.logger.Debug().Str("query", terms).Float64("top_rank", topRank).Msg("retrieval below threshold")
		return Degraded(), nil
	}

	return Result{
		Context:       strings.Join(chunks, "\n\n"),
		Sources:       sources,
		CoverageScore: clamp01(topRank),
		RAGUsed:       true,
	}, nil
}

// searchTerms folds the hint identifiers into the free-text query so that a
// known body part or injury always participates in ranking.
func searchTerms(query string, hints Hints) string {
	parts := make([]string, 0, 3)
	if q := strings.TrimSpace(query); q != "" {
		parts = append(parts, q)
	}
	if hints.BodyPartID != "" {
		parts = append(parts, strings.ReplaceAll(hints.BodyPartID, "_", " "))
	}
	if hints.InjuryID != "" {
		parts = append(parts, strings.ReplaceAll(hints.InjuryID, "_", " "))
	}
	return strings.Join(parts, " ")
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
