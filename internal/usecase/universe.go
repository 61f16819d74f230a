package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/pkg/logger"
)

// UniverseConfig bounds the scanned instruments. A non-empty Symbols list
// replaces exchange enumeration.
type UniverseConfig struct {
	MinQuoteVolume float64
	Max            int
	Symbols        []string
}

// Universe selects the instruments scanned each cycle.
type Universe struct {
	source domrepo.InstrumentSource
	cfg    UniverseConfig
	log    *logger.Logger
}

func NewUniverse(source domrepo.InstrumentSource, cfg UniverseConfig, l *logger.Logger) *Universe {
	if cfg.Max <= 0 {
		cfg.Max = 600
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Universe{source: source, cfg: cfg, log: l}
}

// Instruments returns tradable symbols with 24h quote volume at or above
// the minimum, sorted and capped. When the volume call fails the unfiltered
// list is capped instead.
func (u *Universe) Instruments(ctx context.Context) ([]string, error) {
	if len(u.cfg.Symbols) > 0 {
		out := make([]string, 0, len(u.cfg.Symbols))
		seen := make(map[string]struct{}, len(u.cfg.Symbols))
		for _, s := range u.cfg.Symbols {
			s = strings.ToUpper(strings.TrimSpace(s))
			if _, dup := seen[s]; s == "" || dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
		return capList(out, u.cfg.Max), nil
	}

	all, err := u.source.Instruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	sort.Strings(all)

	volumes, err := u.source.QuoteVolumes(ctx)
	if err != nil {
		u.log.Warn("24h volumes unavailable, using unfiltered universe", logger.Error(err))
		return capList(all, u.cfg.Max), nil
	}

	out := make([]string, 0, len(all))
	for _, s := range all {
		if volumes[s] >= u.cfg.MinQuoteVolume {
			out = append(out, s)
		}
	}
	return capList(out, u.cfg.Max), nil
}

func capList(s []string, n int) []string {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}
