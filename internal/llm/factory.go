package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// New builds the configured provider wrapped as
// timeout → retry → logging → provider.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var base Provider
	var err error
	switch cfg.Provider {
	case ProviderAnthropic:
		base, err = NewAnthropicProvider(cfg)
	case ProviderOpenAI:
		base, err = NewOpenAIProvider(cfg)
	case ProviderGemini:
		base, err = NewGeminiProvider(ctx, cfg)
	case ProviderMock:
		base = NewMockProvider()
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	return Wrap(base, cfg, log), nil
}

// Wrap applies the standard decorator chain to base.
func Wrap(base Provider, cfg Config, log zerolog.Logger) Provider {
	p := WithLogging(base, log)
	p = WithRetry(p, cfg.Retry)
	return WithTimeout(p, cfg.Timeout)
}
