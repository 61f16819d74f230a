// Package volume detects volume anomalies: ratio against history, short
// timeframe spikes and the volume profile.
package volume

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
	"FinSignal/internal/domain/service"
	"FinSignal/internal/services/features"
)

const (
	MinRatioCandles   = 50
	MinSpikeCandles   = 20
	MinProfileCandles = 100

	profileBins  = 20
	profileZones = 3
)

// Config sets the windows of each sub-analysis.
type Config struct {
	RatioTimeframe   repository.Timeframe
	RatioCandles     int
	SpikeTimeframe   repository.Timeframe
	SpikeCandles     int
	SpikeThreshold   float64
	ProfileTimeframe repository.Timeframe
	ProfileCandles   int
}

// DefaultConfig returns 100x1h ratio, 50x15m spike at 3x and 200x1h profile.
func DefaultConfig() Config {
	return Config{
		RatioTimeframe:   repository.TF1h,
		RatioCandles:     100,
		SpikeTimeframe:   repository.TF15m,
		SpikeCandles:     50,
		SpikeThreshold:   3,
		ProfileTimeframe: repository.TF1h,
		ProfileCandles:   200,
	}
}

type Detector struct {
	market repository.MarketData
	cfg    Config
}

var _ service.VolumeAnalyzer = (*Detector)(nil)

func NewDetector(market repository.MarketData, cfg Config) *Detector {
	return &Detector{market: market, cfg: cfg}
}

// Analyze runs the three sub-analyses concurrently. Missing windows leave
// the matching report field nil; an error is returned only when every
// fetch failed.
func (d *Detector) Analyze(ctx context.Context, symbol string) (models.VolumeReport, error) {
	var (
		wg     sync.WaitGroup
		report models.VolumeReport
		errs   [3]error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		candles, err := d.market.Candles(ctx, symbol, d.cfg.RatioTimeframe, d.cfg.RatioCandles)
		if err != nil {
			errs[0] = fmt.Errorf("ratio: %w", err)
			return
		}
		report.Ratio, _ = Ratio(candles)
	}()
	go func() {
		defer wg.Done()
		candles, err := d.market.Candles(ctx, symbol, d.cfg.SpikeTimeframe, d.cfg.SpikeCandles)
		if err != nil {
			errs[1] = fmt.Errorf("spike: %w", err)
			return
		}
		report.Spike, _ = Spike(candles, d.cfg.SpikeThreshold)
	}()
	go func() {
		defer wg.Done()
		candles, err := d.market.Candles(ctx, symbol, d.cfg.ProfileTimeframe, d.cfg.ProfileCandles)
		if err != nil {
			errs[2] = fmt.Errorf("profile: %w", err)
			return
		}
		report.Profile, _ = Profile(candles)
	}()
	wg.Wait()

	if errs[0] != nil && errs[1] != nil && errs[2] != nil {
		return models.VolumeReport{}, errors.Join(errs[:]...)
	}
	return report, nil
}

// Ratio compares the newest volume with the mean and population standard
// deviation of the preceding candles.
func Ratio(candles []models.Candle) (*models.VolumeRatio, error) {
	if len(candles) < MinRatioCandles {
		return nil, models.ErrInsufficientData
	}
	vols := features.Volumes(candles)
	current := vols[len(vols)-1]
	avg, std := features.MeanStd(vols[:len(vols)-1])

	r := &models.VolumeRatio{Current: current, Average: avg, Ratio: 1}
	if avg > 0 {
		r.Ratio = current / avg
	}
	if std > 0 {
		r.ZScore = (current - avg) / std
	}

	switch {
	case r.Ratio >= 5:
		r.State, r.Confidence = models.VolumeStrongMove, 85
		r.Interpretation = fmt.Sprintf("EXTREME volume (%.1fx) - whales active", r.Ratio)
	case r.Ratio >= 3:
		r.State, r.Confidence = models.VolumeStrongMove, 70
		r.Interpretation = fmt.Sprintf("VERY HIGH volume (%.1fx) - major move", r.Ratio)
	case r.Ratio >= 2:
		r.State, r.Confidence = models.VolumeMove, 55
		r.Interpretation = fmt.Sprintf("HIGH volume (%.1fx) - growing interest", r.Ratio)
	case r.Ratio <= 0.3:
		r.State, r.Confidence = models.VolumeCalm, 40
		r.Interpretation = fmt.Sprintf("VERY LOW volume (%.1fx) - calm before the storm?", r.Ratio)
	default:
		r.State = models.VolumeNormal
		r.Interpretation = fmt.Sprintf("Normal volume (%.1fx)", r.Ratio)
	}
	return r, nil
}

// Spike reports the newest candle when its volume reaches threshold times
// the preceding mean. A nil result with a nil error means no spike.
func Spike(candles []models.Candle, threshold float64) (*models.VolumeSpike, error) {
	if len(candles) < MinSpikeCandles {
		return nil, models.ErrInsufficientData
	}
	vols := features.Volumes(candles)
	current := vols[len(vols)-1]
	avg, _ := features.MeanStd(vols[:len(vols)-1])
	ratio := 1.0
	if avg > 0 {
		ratio = current / avg
	}
	if ratio < threshold {
		return nil, nil
	}

	prev := candles[len(candles)-2].Close
	last := candles[len(candles)-1].Close
	change := 0.0
	if prev != 0 {
		change = (last - prev) / prev * 100
	}

	op := models.Opinion{
		Kind:       models.KindVolumeSpike,
		Confidence: math.Min(70+(ratio-threshold)*10, 95),
	}
	if change > 0 {
		op.Direction = models.Bullish
		op.Description = fmt.Sprintf("Volume spike (%.1fx) with price RISING", ratio)
	} else {
		op.Direction = models.Bearish
		op.Description = fmt.Sprintf("Volume spike (%.1fx) with price FALLING", ratio)
	}
	return &models.VolumeSpike{Ratio: ratio, PriceChangePct: change, Opinion: op}, nil
}

// Profile buckets the window's price range into 20 bins, ranks them by
// the volume of candles touching each bin and reports the top 3.
func Profile(candles []models.Candle) (*models.VolumeProfile, error) {
	if len(candles) < MinProfileCandles {
		return nil, models.ErrInsufficientData
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range candles {
		lo = math.Min(lo, c.Low)
		hi = math.Max(hi, c.High)
	}

	edges := features.Linspace(lo, hi, profileBins+1)
	zones := make([]models.VolumeZone, 0, profileBins)
	for i := 0; i < profileBins; i++ {
		z := models.VolumeZone{Low: edges[i], High: edges[i+1]}
		for _, c := range candles {
			if c.Low <= z.High && c.High >= z.Low {
				z.Volume += c.Volume
			}
		}
		zones = append(zones, z)
	}
	sort.SliceStable(zones, func(i, j int) bool { return zones[i].Volume > zones[j].Volume })

	p := &models.VolumeProfile{
		Zones:          zones[:profileZones],
		CurrentPrice:   candles[len(candles)-1].Close,
		Interpretation: "Price outside high-volume zones",
	}
	for _, z := range p.Zones {
		if z.Low <= p.CurrentPrice && p.CurrentPrice <= z.High {
			p.InHighZone = true
			p.Interpretation = fmt.Sprintf("Price in high-volume zone ($%.4f)", (z.Low+z.High)/2)
			break
		}
	}
	return p, nil
}
