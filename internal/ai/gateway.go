package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"dahdouh-ai/internal/metrics"
)

var (
	ErrNoProvider        = errors.New("no inference provider for modality")
	ErrUpstreamTransport = errors.New("inference provider unreachable")
	ErrUpstreamStatus    = errors.New("inference provider returned an error status")
	ErrUpstreamPayload   = errors.New("inference provider returned an error")
	ErrUnparseable       = errors.New("could not interpret inference provider response")
	ErrImageReference    = errors.New("image reference is unusable")
)

// Provider generates text for the modalities it supports.
type Provider interface {
	Name() string
	Supports(m Modality) bool
	Generate(ctx context.Context, m Modality) (string, error)
}

type Generation struct {
	Text     string
	Provider string
	Modality string
}

// Gateway routes each modality to the first provider that supports it.
type Gateway struct {
	providers []Provider
	log       zerolog.Logger
}

func NewGateway(log zerolog.Logger, providers ...Provider) *Gateway {
	return &Gateway{
		providers: providers,
		log:       log.With().Str("component", "inference-gateway").Logger(),
	}
}

func (g *Gateway) Generate(ctx context.Context, m Modality) (*Generation, error) {
	if m == nil {
		return nil, ErrNoProvider
	}
	for _, p := range g.providers {
		if !p.Supports(m) {
			continue
		}

		start := time.Now()
		text, err := p.Generate(ctx, m)
		metrics.ProviderDuration.WithLabelValues(p.Name(), metrics.Outcome(err)).Observe(time.Since(start).Seconds())
		if err != nil {
			g.log.Warn().Err(err).Str("provider", p.Name()).Str("modality", m.Kind()).Msg("generation failed")
			return nil, err
		}
		return &Generation{Text: text, Provider: p.Name(), Modality: m.Kind()}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoProvider, m.Kind())
}
