package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"oipulse/internal/logger"
	"oipulse/internal/store/chainlog"
)

// DayStore 提供单标的单交易日的归档快照序列。
type DayStore interface {
	ListByDay(ctx context.Context, instrument, tradingDate string) ([]chainlog.ChainRecord, error)
}

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorSpot          = "#3b82f6"
	colorVwap          = "#fbbf24"
	colorPcr           = "#22d3ee"

	chartWidthPx  = 1400
	chartHeightPx = 420
)

// Builder 把一天的期权链归档渲染成日报:
// 现货对 VWAP 走势、逐轮 OI 增减、PCR 曲线各一张图。
// 启用 PNG 时经无头浏览器截图，失败则回退为 HTML 产物。
type Builder struct {
	store DayStore
	dir   string
	png   bool
	loc   *time.Location

	renderPNG func(ctx context.Context, html []byte, width, height int) ([]byte, error)
}

// BuilderOption 调整 Builder 行为。
type BuilderOption func(*Builder)

// WithLocation 指定 X 轴时间标签的时区。
func WithLocation(loc *time.Location) BuilderOption {
	return func(b *Builder) {
		if loc != nil {
			b.loc = loc
		}
	}
}

// WithPNGRenderer 替换 PNG 渲染函数，仅用于测试。
func WithPNGRenderer(fn func(ctx context.Context, html []byte, width, height int) ([]byte, error)) BuilderOption {
	return func(b *Builder) {
		if fn != nil {
			b.renderPNG = fn
		}
	}
}

func NewBuilder(store DayStore, dir string, png bool, opts ...BuilderOption) *Builder {
	b := &Builder{
		store:     store,
		dir:       dir,
		png:       png,
		loc:       time.UTC,
		renderPNG: renderHTMLToPNG,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildDay 生成指定标的指定交易日的日报，返回产物路径。
// 当天没有归档数据时返回空路径且不报错。
func (b *Builder) BuildDay(ctx context.Context, instrument, tradingDate string) (string, error) {
	if b == nil || b.store == nil {
		return "", fmt.Errorf("日报构建器未初始化")
	}
	records, err := b.store.ListByDay(ctx, instrument, tradingDate)
	if err != nil {
		return "", fmt.Errorf("读取期权链归档失败: %w", err)
	}
	if len(records) == 0 {
		logger.Debugf("日报: %s %s 没有归档数据，跳过", instrument, tradingDate)
		return "", nil
	}

	html, err := b.buildDayHTML(instrument, tradingDate, records)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", fmt.Errorf("创建日报目录失败: %w", err)
	}
	base := fmt.Sprintf("%s_%s", strings.ToLower(strings.TrimSpace(instrument)), tradingDate)
	htmlPath := filepath.Join(b.dir, base+".html")
	if err := os.WriteFile(htmlPath, html, 0o644); err != nil {
		return "", fmt.Errorf("写入日报 HTML 失败: %w", err)
	}
	if !b.png {
		return htmlPath, nil
	}

	height := 3 * (chartHeightPx + 40)
	png, err := b.renderPNG(ctx, html, chartWidthPx, height)
	if err != nil {
		logger.Warnf("日报: PNG 渲染失败，回退 HTML %s: %v", htmlPath, err)
		return htmlPath, nil
	}
	pngPath := filepath.Join(b.dir, base+".png")
	if err := os.WriteFile(pngPath, png, 0o644); err != nil {
		logger.Warnf("日报: 写入 PNG 失败，回退 HTML %s: %v", htmlPath, err)
		return htmlPath, nil
	}
	return pngPath, nil
}

func (b *Builder) buildDayHTML(instrument, tradingDate string, records []chainlog.ChainRecord) ([]byte, error) {
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	xAxis := b.buildXAxis(records)
	page.AddCharts(
		buildPriceChart(instrument, tradingDate, xAxis, records),
		buildOiDeltaChart(xAxis, records),
		buildPcrChart(xAxis, records),
	)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("渲染日报图表失败: %w", err)
	}
	return buf.Bytes(), nil
}

func (b *Builder) buildXAxis(records []chainlog.ChainRecord) []string {
	x := make([]string, len(records))
	for i, r := range records {
		x[i] = time.UnixMilli(r.Timestamp).In(b.loc).Format("15:04")
	}
	return x
}

func buildPriceChart(instrument, tradingDate string, xAxis []string, records []chainlog.ChainRecord) *charts.Line {
	last := records[len(records)-1]
	minVal, maxVal := priceBounds(records)
	padding := (maxVal - minVal) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxVal)*0.001)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         fmt.Sprintf("%s %s", strings.ToUpper(instrument), tradingDate),
			Subtitle:      fmt.Sprintf("cycles %d | spot %.1f | PCR %.2f | %s", len(records), last.Spot, last.Pcr, last.PriceDirection),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			Min:       round(minVal-padding, 2),
			Max:       round(maxVal+padding, 2),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)

	spot := make([]opts.LineData, len(records))
	vwap := make([]opts.LineData, len(records))
	for i, r := range records {
		spot[i] = opts.LineData{Value: round(r.Spot, 2)}
		if r.Vwap > 0 {
			vwap[i] = opts.LineData{Value: round(r.Vwap, 2)}
		} else {
			vwap[i] = opts.LineData{Value: nil}
		}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("Spot", spot, charts.WithLineStyleOpts(opts.LineStyle{Color: colorSpot, Width: 2}))
	line.AddSeries("VWAP", vwap, charts.WithLineStyleOpts(opts.LineStyle{Color: colorVwap, Width: 2}))
	return line
}

func buildOiDeltaChart(xAxis []string, records []chainlog.ChainRecord) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "OI delta per cycle", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextSecondary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)

	calls := make([]opts.BarData, len(records))
	puts := make([]opts.BarData, len(records))
	for i, r := range records {
		calls[i] = opts.BarData{
			Value:     round(r.CallOiDelta, 0),
			ItemStyle: &opts.ItemStyle{Color: colorBear, Opacity: opts.Float(0.7)},
		}
		puts[i] = opts.BarData{
			Value:     round(r.PutOiDelta, 0),
			ItemStyle: &opts.ItemStyle{Color: colorBull, Opacity: opts.Float(0.7)},
		}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("Call OI delta", calls)
	bar.AddSeries("Put OI delta", puts)
	return bar
}

func buildPcrChart(xAxis []string, records []chainlog.ChainRecord) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Put/Call ratio", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)

	pcr := make([]opts.LineData, len(records))
	for i, r := range records {
		pcr[i] = opts.LineData{Value: round(r.Pcr, 3)}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("PCR", pcr, charts.WithLineStyleOpts(opts.LineStyle{Color: colorPcr, Width: 2}))
	return line
}

func priceBounds(records []chainlog.ChainRecord) (minVal, maxVal float64) {
	minVal = records[0].Spot
	maxVal = records[0].Spot
	for _, r := range records {
		for _, v := range []float64{r.Spot, r.Vwap} {
			if v <= 0 {
				continue
			}
			if v < minVal {
				minVal = v
			}
			if v > maxVal {
				maxVal = v
			}
		}
	}
	return minVal, maxVal
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
