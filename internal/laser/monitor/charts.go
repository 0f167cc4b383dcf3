package monitor

import (
	"bytes"
	"fmt"
	"image/color"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/beyondlink/internal/laser"
)

// blankColor draws blanked moves, which would otherwise be invisible.
var blankColor = color.RGBA{R: 0x55, G: 0x55, B: 0x55, A: 0xff}

func pointColor(p laser.Point) color.RGBA {
	if p.IsBlank() {
		return blankColor
	}
	return color.RGBA{R: channel(p.R), G: channel(p.G), B: channel(p.B), A: 0xff}
}

// channel scales a colour component to a byte. Simulated points carry
// boosted intensities above 1, which saturate.
func channel(v float32) uint8 {
	return uint8(max(0, min(1, v)) * 255)
}

func scatterData(points []laser.Point) []opts.ScatterData {
	data := make([]opts.ScatterData, 0, len(points))
	for _, p := range points {
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y}})
	}
	return data
}

// handleDeviceScatter renders the processed views of one device as an
// interactive scatter with one series per view.
func (ws *WebServer) handleDeviceScatter(w http.ResponseWriter, r *http.Request) {
	src := ws.deviceFromPath(w, r)
	if src == nil {
		return
	}
	set := src.Processed()

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Laser Output", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Device %d (%s)", src.DeviceIndex()+1, devicePrefix(src.DeviceIndex())),
			Subtitle: fmt.Sprintf("state=%s points=%d beam=%d hot=%d", src.State(), len(set.Points), len(set.BeamPoints), len(set.HotBeamPoints)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -1.05, Max: 1.05, Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -1.05, Max: 1.05, Name: "Y", NameLocation: "middle", NameGap: 30}),
	)

	scatter.AddSeries("main", scatterData(set.Points), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#35b779"}))
	scatter.AddSeries("beam", scatterData(set.BeamPoints), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#31688e"}))
	scatter.AddSeries("hot", scatterData(set.HotBeamPoints), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#fde725"}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// plotPoints adds one coloured scatter series to p. Empty series are
// skipped since plotter rejects them.
func plotPoints(p *plot.Plot, name string, points []laser.Point, radius vg.Length) error {
	if len(points) == 0 {
		return nil
	}
	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i] = plotter.XY{X: float64(pt.X), Y: float64(pt.Y)}
	}
	s, err := plotter.NewScatter(xys)
	if err != nil {
		return err
	}
	s.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		return draw.GlyphStyle{Color: pointColor(points[i]), Radius: radius, Shape: draw.CircleGlyph{}}
	}
	p.Add(s)
	p.Legend.Add(name, s)
	return nil
}

// RenderPointsPNG draws the processed views of a device into a square PNG.
func RenderPointsPNG(title string, set laser.ProcessedPointSet, size vg.Length) ([]byte, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"
	p.X.Min, p.X.Max = -1.05, 1.05
	p.Y.Min, p.Y.Max = -1.05, 1.05
	p.BackgroundColor = color.Black
	p.Title.TextStyle.Color = color.White
	p.Legend.TextStyle.Color = color.White
	p.Legend.Top = true

	if err := plotPoints(p, "main", set.Points, vg.Points(1)); err != nil {
		return nil, fmt.Errorf("main series: %w", err)
	}
	if err := plotPoints(p, "beam", set.BeamPoints, vg.Points(2)); err != nil {
		return nil, fmt.Errorf("beam series: %w", err)
	}
	if err := plotPoints(p, "hot", set.HotBeamPoints, vg.Points(3)); err != nil {
		return nil, fmt.Errorf("hot series: %w", err)
	}

	wt, err := p.WriterTo(size, size, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (ws *WebServer) handleDevicePlot(w http.ResponseWriter, r *http.Request) {
	src := ws.deviceFromPath(w, r)
	if src == nil {
		return
	}
	title := fmt.Sprintf("Device %d (%s)", src.DeviceIndex()+1, src.State())
	img, err := RenderPointsPNG(title, src.Processed(), 6*vg.Inch)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(img)
}
