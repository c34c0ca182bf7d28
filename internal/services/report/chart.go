// Package report renders the per-ticker chart artifact and notification caption.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/models"
	"ProTrdx/internal/services/features"
)

const (
	chartWidth   = 800.0
	priceHeight  = 300.0
	rsiTop       = 330.0
	rsiHeight    = 110.0
	chartHeight  = 460.0
	chartPadding = 40.0
)

var chartTmpl = template.Must(template.New("chart").Parse(`<svg xmlns="http://www.w3.org/2000/svg" width="{{.Width}}" height="{{.Height}}" viewBox="0 0 {{.Width}} {{.Height}}">
<rect width="100%" height="100%" fill="#ffffff"/>
<text x="{{.Pad}}" y="24" font-family="sans-serif" font-size="16">{{.Title}}</text>
<text x="{{.Right}}" y="24" font-family="sans-serif" font-size="12" text-anchor="end">{{.Range}}</text>
<polyline fill="none" stroke="#1f77b4" stroke-width="1.5" points="{{.Close}}"/>
{{- if .SMA}}
<polyline fill="none" stroke="#ff7f0e" stroke-width="1" points="{{.SMA}}"/>
{{- end}}
<rect x="{{.Pad}}" y="{{.RSITop}}" width="{{.PlotWidth}}" height="{{.RSIHeight}}" fill="none" stroke="#cccccc"/>
<line x1="{{.Pad}}" x2="{{.Right}}" y1="{{.RSI70}}" y2="{{.RSI70}}" stroke="#d62728" stroke-dasharray="4 4"/>
<line x1="{{.Pad}}" x2="{{.Right}}" y1="{{.RSI30}}" y2="{{.RSI30}}" stroke="#2ca02c" stroke-dasharray="4 4"/>
{{- if .RSI}}
<polyline fill="none" stroke="#9467bd" stroke-width="1" points="{{.RSI}}"/>
{{- end}}
</svg>
`))

type chartData struct {
	Width, Height, Pad, Right, PlotWidth float64
	RSITop, RSIHeight, RSI70, RSI30      float64
	Title, Range                         string
	Close, SMA, RSI                      string
}

// RenderChart draws the close price with its 20-bar SMA and a 14-bar RSI pane
// over the last maxBars candles.
func RenderChart(ticker string, history []models.Candle, maxBars int) ([]byte, error) {
	if len(history) < 2 {
		return nil, fmt.Errorf("chart %s: need at least 2 bars, got %d", ticker, len(history))
	}
	closes := make([]float64, len(history))
	for i, c := range history {
		closes[i] = c.Close
	}

	start := 0
	if maxBars > 1 && len(closes) > maxBars {
		start = len(closes) - maxBars
	}
	window := closes[start:]

	sma := make([]float64, len(window))
	rsi := make([]float64, len(window))
	for i := range window {
		upto := closes[:start+i+1]
		sma[i] = features.SMA(upto, 20)
		rsi[i] = features.RSI(upto, 14)
	}

	lo, hi := bounds(window, sma)
	right := chartWidth - chartPadding
	plotW := right - chartPadding
	priceY := func(v float64) float64 {
		return chartPadding + (hi-v)/(hi-lo)*(priceHeight-chartPadding)
	}
	rsiY := func(v float64) float64 {
		return rsiTop + (100-v)/100*rsiHeight
	}

	data := chartData{
		Width:     chartWidth,
		Height:    chartHeight,
		Pad:       chartPadding,
		Right:     right,
		PlotWidth: plotW,
		RSITop:    rsiTop,
		RSIHeight: rsiHeight,
		RSI70:     rsiY(70),
		RSI30:     rsiY(30),
		Title:     template.HTMLEscapeString(ticker),
		Range: fmt.Sprintf("%s to %s",
			history[start].Time.UTC().Format("2006-01-02"),
			history[len(history)-1].Time.UTC().Format("2006-01-02")),
		Close: points(window, plotW, priceY),
		SMA:   points(sma, plotW, priceY),
		RSI:   points(rsi, plotW, rsiY),
	}

	var buf bytes.Buffer
	if err := chartTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("chart %s: %w", ticker, err)
	}
	return buf.Bytes(), nil
}

func bounds(series ...[]float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, v := range s {
			if math.IsNaN(v) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if hi-lo < 1e-9 {
		lo, hi = lo-1, hi+1
	}
	return lo, hi
}

// points skips NaN warm-up values.
func points(values []float64, plotW float64, y func(float64) float64) string {
	step := plotW / float64(len(values)-1)
	var b strings.Builder
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%.1f,%.1f", chartPadding+float64(i)*step, y(v))
	}
	return b.String()
}

// ChartStore writes chart files into one directory.
type ChartStore struct {
	dir string
}

func NewChartStore(dir string) *ChartStore {
	return &ChartStore{dir: dir}
}

func (s *ChartStore) Dir() string { return s.dir }

// Save writes the chart and returns its path.
func (s *ChartStore) Save(ticker string, snap models.IndicatorSnapshot, svg []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create charts dir: %w", err)
	}
	name := ChartFilename(ticker, snap)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, svg, 0o644); err != nil {
		return "", fmt.Errorf("write chart: %w", err)
	}
	return path, nil
}

// Open resolves a bare filename inside the store, refusing path traversal.
func (s *ChartStore) Open(filename string) (string, error) {
	const op = "charts.open"
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return "", errs.New(errs.ErrData, op, "invalid chart filename %q", filename)
	}
	path := filepath.Join(s.dir, filename)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", errs.New(errs.ErrNotFound, op, "chart %s", filename)
		}
		return "", err
	}
	return path, nil
}

// ChartFilename is SYMBOL_YYYYMMDD.svg with filesystem-unsafe runes replaced.
func ChartFilename(ticker string, snap models.IndicatorSnapshot) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, ticker)
	return fmt.Sprintf("%s_%s.svg", safe, snap.AsOf.UTC().Format("20060102"))
}
