package upstox

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
	"time"

	"github.com/tidwall/gjson"

	"oipulse/internal/chain"
	"oipulse/internal/market"
)

const (
	chainPath = "/v2/option/chain"
	ltpPath   = "/v2/market-quote/ltp"
)

// FetchChain 拉取一个标的在给定到期日的期权链，裁剪到 ATM 附近的跟踪行权价。
func (c *Client) FetchChain(ctx context.Context, inst market.Instrument, expiryDate string) (chain.Snapshot, error) {
	query := url.Values{}
	query.Set("instrument_key", inst.InstrumentKey)
	query.Set("expiry_date", expiryDate)

	body, err := c.getJSON(ctx, chainPath, query)
	if err != nil {
		return chain.Snapshot{}, err
	}
	if !gjson.ValidBytes(body) {
		return chain.Snapshot{}, fmt.Errorf("%w: 期权链响应不是合法 JSON", ErrDataFetch)
	}
	root := gjson.ParseBytes(body)
	if status := root.Get("status").String(); status != "success" {
		return chain.Snapshot{}, fmt.Errorf("%w: 期权链响应状态 %q", ErrDataFetch, status)
	}
	rows := root.Get("data")
	if !rows.IsArray() || len(rows.Array()) == 0 {
		return chain.Snapshot{}, fmt.Errorf("%w: 期权链数据为空 %s %s", ErrDataFetch, inst.Name, expiryDate)
	}

	spot := rows.Array()[0].Get("underlying_spot_price").Float()
	if spot <= 0 {
		spot, err = c.FetchSpot(ctx, inst.InstrumentKey)
		if err != nil {
			return chain.Snapshot{}, err
		}
	}

	tracked := make(map[int64]bool)
	for _, strike := range inst.TrackedStrikes(spot) {
		tracked[strikeKey(strike)] = true
	}

	quotes := make([]chain.StrikeQuote, 0, len(tracked))
	rows.ForEach(func(_, row gjson.Result) bool {
		strike := row.Get("strike_price").Float()
		if strike <= 0 || !tracked[strikeKey(strike)] {
			return true
		}
		quotes = append(quotes, chain.StrikeQuote{
			Strike:     strike,
			CallOI:     row.Get("call_options.market_data.oi").Float(),
			PutOI:      row.Get("put_options.market_data.oi").Float(),
			CallVolume: row.Get("call_options.market_data.volume").Float(),
			PutVolume:  row.Get("put_options.market_data.volume").Float(),
			CallLTP:    row.Get("call_options.market_data.ltp").Float(),
			PutLTP:     row.Get("put_options.market_data.ltp").Float(),
		})
		return true
	})
	if len(quotes) == 0 {
		return chain.Snapshot{}, fmt.Errorf("%w: 跟踪行权价在期权链中无匹配 %s %s", ErrDataFetch, inst.Name, expiryDate)
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Strike < quotes[j].Strike })

	return chain.Snapshot{
		Instrument: inst.Name,
		Expiry:     expiryDate,
		CapturedAt: time.Now(),
		Spot:       spot,
		ATMStrike:  inst.ATMStrike(spot),
		Strikes:    quotes,
	}, nil
}

// FetchSpot 用 LTP 行情端点兜底获取现货价。
func (c *Client) FetchSpot(ctx context.Context, instrumentKey string) (float64, error) {
	query := url.Values{}
	query.Set("instrument_key", instrumentKey)

	body, err := c.getJSON(ctx, ltpPath, query)
	if err != nil {
		return 0, err
	}
	if !gjson.ValidBytes(body) {
		return 0, fmt.Errorf("%w: LTP 响应不是合法 JSON", ErrDataFetch)
	}
	root := gjson.ParseBytes(body)
	if status := root.Get("status").String(); status != "success" {
		return 0, fmt.Errorf("%w: LTP 响应状态 %q", ErrDataFetch, status)
	}

	var spot float64
	root.Get("data").ForEach(func(_, quote gjson.Result) bool {
		if v := quote.Get("last_price").Float(); v > 0 {
			spot = v
			return false
		}
		return true
	})
	if spot <= 0 {
		return 0, fmt.Errorf("%w: LTP 响应缺少 last_price %s", ErrDataFetch, instrumentKey)
	}
	return spot, nil
}

func strikeKey(strike float64) int64 {
	return int64(math.Round(strike * 100))
}
