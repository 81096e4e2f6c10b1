package sensor_simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/rootwater/internal/model"
)

// single fetch at startup, never per tick
const soilGridsURL = "https://rest.isric.org/soilgrids/v2.0/properties/query?lat=%f&lon=%f&property=wv0033&depth=%s&value=mean"

var errNoMoisture = errors.New("soilgrids: moisture value not found")

type soilGridsResponse struct {
	Properties struct {
		Layers []struct {
			Name   string `json:"name"`
			Depths []struct {
				Label  string             `json:"label"`
				Values map[string]*float64 `json:"values"`
			} `json:"depths"`
		} `json:"layers"`
	} `json:"properties"`
}

// SoilGrids seeds generators with the water content at field capacity of the
// ISRIC SoilGrids layer around a probe.
type SoilGrids struct {
	BaseURL string // format with lat, lon and depth label
	Client  *http.Client
	Retries uint64
	Log     *zap.Logger
}

func NewSoilGrids(log *zap.Logger) *SoilGrids {
	return &SoilGrids{
		BaseURL: soilGridsURL,
		Client:  &http.Client{Timeout: 8 * time.Second},
		Retries: 2,
		Log:     log,
	}
}

// depthLabel maps a probe depth to the SoilGrids standard interval.
func depthLabel(cm float64) string {
	switch {
	case cm < 5:
		return "0-5cm"
	case cm < 15:
		return "5-15cm"
	case cm < 30:
		return "15-30cm"
	case cm < 60:
		return "30-60cm"
	case cm < 100:
		return "60-100cm"
	}
	return "100-200cm"
}

// Moisture returns the layer water content at the probe, vol.%.
func (s *SoilGrids) Moisture(ctx context.Context, p *model.Probe) (float64, error) {
	url := fmt.Sprintf(s.BaseURL, p.Latitude, p.Longitude, depthLabel(p.DepthCM))

	var out float64
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", "rootwater-sensor-simulator/1.0")
		resp, err := s.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("soilgrids HTTP %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("soilgrids HTTP %d: %s", resp.StatusCode, string(body)))
		}
		v, err := parseSoilGrids(body)
		if err != nil {
			return backoff.Permanent(err)
		}
		out = v
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 600 * time.Millisecond
	notify := func(err error, d time.Duration) {
		s.Log.Warn("soilgrids retry", zap.Error(err), zap.Duration("wait", d))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, s.Retries), ctx), notify); err != nil {
		return 0, err
	}
	return out, nil
}

// parseSoilGrids reads the first mapped value. Water content layers are
// stored in 10^-3 cm3/cm3.
func parseSoilGrids(body []byte) (float64, error) {
	var r soilGridsResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return 0, fmt.Errorf("soilgrids: %w", err)
	}
	for _, l := range r.Properties.Layers {
		for _, d := range l.Depths {
			for _, k := range []string{"mean", "Q0.5"} {
				if v := d.Values[k]; v != nil {
					return *v / 10, nil
				}
			}
		}
	}
	return 0, errNoMoisture
}

// SeedFromSoilGrids seeds g at t from SoilGrids, or with the default seed
// when the lookup fails.
func (g *DataGenerator) SeedFromSoilGrids(ctx context.Context, sg *SoilGrids, p *model.Probe, t time.Time) {
	seed := defaultSeed
	if p.Latitude != 0 || p.Longitude != 0 {
		m, err := sg.Moisture(ctx, p)
		if err == nil && m > 0 {
			seed = m
		} else {
			sg.Log.Warn("soilgrids seed unavailable, using default",
				zap.String("probe", p.ID), zap.Float64("seed", seed), zap.Error(err))
		}
	}
	g.Seed(seed, t)
}
