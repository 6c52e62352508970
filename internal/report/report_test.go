package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oipulse/internal/store/chainlog"
)

type fakeDayStore struct {
	records []chainlog.ChainRecord
	err     error
}

func (f *fakeDayStore) ListByDay(_ context.Context, _, _ string) ([]chainlog.ChainRecord, error) {
	return f.records, f.err
}

func dayRecords() []chainlog.ChainRecord {
	base := time.Date(2025, 8, 25, 4, 30, 0, 0, time.UTC)
	out := make([]chainlog.ChainRecord, 0, 4)
	for i := 0; i < 4; i++ {
		out = append(out, chainlog.ChainRecord{
			ID:             int64(i + 1),
			TradingDate:    "2025-08-25",
			Timestamp:      base.Add(time.Duration(i) * time.Minute).UnixMilli(),
			Instrument:     "NIFTY",
			Spot:           24000 + float64(i)*20,
			Vwap:           24010,
			Pcr:            1.1 + float64(i)*0.1,
			CallOiDelta:    float64(i) * 5000,
			PutOiDelta:     float64(i) * -4000,
			PriceDirection: "UP",
		})
	}
	return out
}

func TestBuildDayWritesHTML(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(&fakeDayStore{records: dayRecords()}, dir, false)

	path, err := b.BuildDay(context.Background(), "NIFTY", "2025-08-25")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nifty_2025-08-25.html"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(raw)
	assert.Contains(t, html, "NIFTY 2025-08-25")
	assert.Contains(t, html, "Spot")
	assert.Contains(t, html, "VWAP")
	assert.Contains(t, html, "Call OI delta")
	assert.Contains(t, html, "Put OI delta")
	assert.Contains(t, html, "PCR")
}

func TestBuildDayNoData(t *testing.T) {
	b := NewBuilder(&fakeDayStore{}, t.TempDir(), false)

	path, err := b.BuildDay(context.Background(), "NIFTY", "2025-08-25")
	require.NoError(t, err)
	assert.Empty(t, path, "no archive rows, no artifact")
}

func TestBuildDayStoreError(t *testing.T) {
	b := NewBuilder(&fakeDayStore{err: errors.New("db locked")}, t.TempDir(), false)

	_, err := b.BuildDay(context.Background(), "NIFTY", "2025-08-25")
	assert.Error(t, err)
}

func TestBuildDayPNG(t *testing.T) {
	t.Run("renders png artifact", func(t *testing.T) {
		dir := t.TempDir()
		fakePNG := []byte("png-bytes")
		b := NewBuilder(&fakeDayStore{records: dayRecords()}, dir, true,
			WithPNGRenderer(func(_ context.Context, html []byte, _, _ int) ([]byte, error) {
				require.NotEmpty(t, html)
				return fakePNG, nil
			}))

		path, err := b.BuildDay(context.Background(), "NIFTY", "2025-08-25")
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(path, "nifty_2025-08-25.png"))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, fakePNG, raw)

		_, err = os.Stat(filepath.Join(dir, "nifty_2025-08-25.html"))
		assert.NoError(t, err, "HTML stays next to the screenshot")
	})

	t.Run("falls back to html when headless render fails", func(t *testing.T) {
		dir := t.TempDir()
		b := NewBuilder(&fakeDayStore{records: dayRecords()}, dir, true,
			WithPNGRenderer(func(context.Context, []byte, int, int) ([]byte, error) {
				return nil, errors.New("chrome not found")
			}))

		path, err := b.BuildDay(context.Background(), "NIFTY", "2025-08-25")
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(path, ".html"))
	})
}

func TestBuildXAxisUsesLocation(t *testing.T) {
	ist := time.FixedZone("IST", int(5.5*3600))
	b := NewBuilder(&fakeDayStore{}, t.TempDir(), false, WithLocation(ist))

	records := []chainlog.ChainRecord{{
		Timestamp: time.Date(2025, 8, 25, 4, 30, 0, 0, time.UTC).UnixMilli(),
	}}
	x := b.buildXAxis(records)
	require.Len(t, x, 1)
	assert.Equal(t, "10:00", x[0], "04:30 UTC is 10:00 IST")
}
