package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/umadex/umadex-backend/internal/metrics"
)

type loggingProvider struct {
	inner Provider
	log   zerolog.Logger
}

// WithLogging records every provider call as a structured log line and
// in the LLM latency and token metrics.
func WithLogging(p Provider, log zerolog.Logger) Provider {
	return &loggingProvider{inner: p, log: log.With().Str("component", "llm").Logger()}
}

func (l *loggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	purpose := PurposeFrom(ctx)

	resp, err := l.inner.Generate(ctx, req)
	elapsed := time.Since(start)

	var in, out int
	model := l.inner.ModelID()
	if resp != nil {
		in, out = resp.Usage.InputTokens, resp.Usage.OutputTokens
		if resp.Model != "" {
			model = resp.Model
		}
	}
	metrics.ObserveLLM(purpose, elapsed, err == nil, in, out)

	evt := l.log.Debug()
	if err != nil {
		evt = l.log.Warn().Err(err)
	}
	evt.Str("purpose", purpose).
		Str("model", model).
		Dur("latency", elapsed).
		Int("input_tokens", in).
		Int("output_tokens", out).
		Msg("LLM request")

	return resp, err
}

func (l *loggingProvider) ModelID() string { return l.inner.ModelID() }
