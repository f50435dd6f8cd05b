// Package resilient wraps the Generator, embedding, and retriever
// collaborators with pkg/resilience's circuit breaker and rate limiter,
// per spec §5's "the circuit breaker and rate limiter guard the LLM,
// embedding, and retriever calls" concurrency-model commitment. Each
// wrapper composes cleanly with the interface the wrapped package already
// exports, so the agent graph, retriever, and ingestion worker never know
// they're calling through a guard.
package resilient

import (
	"context"

	"github.com/brightloom-labs/docrag/engine/embed"
	"github.com/brightloom-labs/docrag/engine/generate"
	"github.com/brightloom-labs/docrag/engine/retrieve"
	"github.com/brightloom-labs/docrag/pkg/resilience"
)

// Generator wraps a generate.Generator so every Complete/Stream call passes
// through a rate limiter (wait-for-token) then a circuit breaker.
type Generator struct {
	Inner   generate.Generator
	Breaker *resilience.Breaker
	Limiter *resilience.Limiter
}

// NewGenerator builds a Generator wrapper around the given breaker and
// limiter as is; a nil breaker or limiter is not replaced with a default.
func NewGenerator(inner generate.Generator, breaker *resilience.Breaker, limiter *resilience.Limiter) *Generator {
	return &Generator{Inner: inner, Breaker: breaker, Limiter: limiter}
}

func (g *Generator) Complete(ctx context.Context, req generate.Request) (string, error) {
	if err := g.Limiter.Wait(ctx); err != nil {
		return "", err
	}
	var resp string
	err := g.Breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = g.Inner.Complete(ctx, req)
		return callErr
	})
	return resp, err
}

// Stream guards the call that establishes the stream; once the channel is
// handed back, deltas flow from the underlying generator directly, since
// the breaker/limiter protect against failing to start a generation, not
// against a generation already in flight.
func (g *Generator) Stream(ctx context.Context, req generate.Request) (<-chan generate.Delta, error) {
	if err := g.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var ch <-chan generate.Delta
	err := g.Breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		ch, callErr = g.Inner.Stream(ctx, req)
		return callErr
	})
	return ch, err
}

// VectorSearcher wraps a retrieve.VectorSearcher so Qdrant calls pass
// through the same guard.
type VectorSearcher struct {
	Inner   retrieve.VectorSearcher
	Breaker *resilience.Breaker
	Limiter *resilience.Limiter
}

func NewVectorSearcher(inner retrieve.VectorSearcher, breaker *resilience.Breaker, limiter *resilience.Limiter) *VectorSearcher {
	return &VectorSearcher{Inner: inner, Breaker: breaker, Limiter: limiter}
}

func (v *VectorSearcher) SearchDense(ctx context.Context, vector []float32, limit int, f retrieve.Filters) ([]retrieve.Hit, error) {
	if err := v.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var hits []retrieve.Hit
	err := v.Breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		hits, callErr = v.Inner.SearchDense(ctx, vector, limit, f)
		return callErr
	})
	return hits, err
}

func (v *VectorSearcher) SearchSparse(ctx context.Context, sparse []float32, indices []uint32, limit int, f retrieve.Filters) ([]retrieve.Hit, error) {
	if err := v.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var hits []retrieve.Hit
	err := v.Breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		hits, callErr = v.Inner.SearchSparse(ctx, sparse, indices, limit, f)
		return callErr
	})
	return hits, err
}

// Dense wraps an embed.Dense so embedding calls pass through the same guard.
type Dense struct {
	Inner   embed.Dense
	Breaker *resilience.Breaker
	Limiter *resilience.Limiter
}

func NewDense(inner embed.Dense, breaker *resilience.Breaker, limiter *resilience.Limiter) *Dense {
	return &Dense{Inner: inner, Breaker: breaker, Limiter: limiter}
}

func (d *Dense) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := d.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var vec []float32
	err := d.Breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		vec, callErr = d.Inner.Embed(ctx, text)
		return callErr
	})
	return vec, err
}

func (d *Dense) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := d.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var vecs [][]float32
	err := d.Breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		vecs, callErr = d.Inner.EmbedBatch(ctx, texts)
		return callErr
	})
	return vecs, err
}
