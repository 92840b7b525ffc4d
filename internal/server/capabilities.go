package server

import (
	"net/http"
	"time"

	"github.com/ironsheep/imgresize/internal/cache"
	"github.com/ironsheep/imgresize/internal/imaging"
)

// AlgorithmInfo describes one resize algorithm.
type AlgorithmInfo struct {
	Name       string `json:"name"`
	Multiplier int    `json:"multiplier,omitempty"`
	UsesFilter bool   `json:"uses_filter"`
}

// FormatInfo describes one output format.
type FormatInfo struct {
	Name      string `json:"name"`
	MIMEType  string `json:"mime_type"`
	Extension string `json:"extension"`
}

// DefaultsInfo reports what omitted parameters resolve to.
type DefaultsInfo struct {
	Algorithm    string  `json:"algorithm"`
	Filter       string  `json:"filter"`
	Output       string  `json:"output"`
	Background   string  `json:"background"`
	DPRMin       float64 `json:"dpr_min"`
	DPRMax       float64 `json:"dpr_max"`
	MaxDimension int     `json:"max_dimension"`
}

// Capabilities is the body of GET /_capabilities.
type Capabilities struct {
	Version string `json:"version"`

	// Algorithms are listed from cheapest to most expensive.
	Algorithms []AlgorithmInfo `json:"algorithms"`
	Filters    []string        `json:"filters"`
	Formats    []FormatInfo    `json:"formats"`
	Parameters []string        `json:"parameters"`
	Defaults   DefaultsInfo    `json:"defaults"`
	Workers    int             `json:"workers"`

	// CacheCapacity is the most results the cache retains; 0 disables retention.
	CacheCapacity int `json:"cache_capacity"`
}

// StatsResponse is the body of GET /_stats.
type StatsResponse struct {
	Cache  cache.Stats `json:"cache"`
	Uptime string      `json:"uptime"`
}

// GetCapabilities lists every algorithm, filter and format the engine
// accepts along with its configured defaults.
func (s *Server) GetCapabilities() Capabilities {
	c := Capabilities{
		Version:    s.version,
		Parameters: []string{"w", "h", "dpr", "output", "algorithm", "filter", "bg"},
		Workers:    s.engine.Workers(),

		CacheCapacity: s.engine.CacheCapacity(),
	}
	for _, a := range imaging.Algorithms {
		info := AlgorithmInfo{Name: a.String(), UsesFilter: a.UsesFilter()}
		if a.Multiplier() > 1 {
			info.Multiplier = a.Multiplier()
		}
		c.Algorithms = append(c.Algorithms, info)
	}
	for _, f := range imaging.Filters {
		c.Filters = append(c.Filters, f.String())
	}
	for _, f := range imaging.Formats {
		c.Formats = append(c.Formats, FormatInfo{Name: f.String(), MIMEType: f.MIMEType(), Extension: f.Extension()})
	}

	d := s.engine.Defaults()
	c.Defaults = DefaultsInfo{
		Algorithm:    d.Algorithm.String(),
		Filter:       d.Filter.String(),
		Output:       d.Output.String(),
		Background:   imaging.HexString(d.Background),
		DPRMin:       d.MinDPR,
		DPRMax:       d.MaxDPR,
		MaxDimension: d.MaxDimension,
	}
	return c
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.GetCapabilities())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Cache:  s.engine.Stats(),
		Uptime: time.Since(s.started).Round(time.Second).String(),
	})
}
