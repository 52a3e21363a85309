package baostock

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/aegis-ingest/internal/contracts"
)

// historyFields are requested from the k-data endpoint
var historyFields = []string{
	"date", "code", "open", "high", "low", "close", "preclose",
	"volume", "amount", "adjustflag", "turn", "tradestatus", "pctChg", "isST",
}

// FetchDailyBars fetches forward-adjusted daily bars of code (archive form,
// e.g. SH600000) for [start, end]. A successful response with no rows yields
// an empty slice.
func (c *Client) FetchDailyBars(ctx context.Context, code string, start, end time.Time) ([]contracts.RawBar, error) {
	providerCode, err := contracts.ToProviderCode(code)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("code", providerCode)
	params.Set("fields", strings.Join(historyFields, ","))
	params.Set("start_date", start.Format(contracts.DateLayout))
	params.Set("end_date", end.Format(contracts.DateLayout))
	params.Set("frequency", c.strategy.Frequency)
	params.Set("adjustflag", c.strategy.AdjustFlag)

	var bars []contracts.RawBar
	err = c.withRetry(ctx, "fetch "+code, func() error {
		rs, err := c.query(ctx, "/history/k-data", params)
		if err != nil {
			return err
		}
		bars, err = parseBars(rs)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"code": code,
		"rows": len(bars),
	}).Debug("fetched daily bars")
	return bars, nil
}

// parseBars maps rows by the returned field names, so the provider may
// reorder or omit optional fields
func parseBars(rs *resultSet) ([]contracts.RawBar, error) {
	idx := make(map[string]int, len(rs.Fields))
	for i, f := range rs.Fields {
		idx[f] = i
	}
	if _, ok := idx["date"]; !ok && len(rs.Data) > 0 {
		return nil, fmt.Errorf("response has no date field")
	}

	get := func(row []string, field string) string {
		i, ok := idx[field]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	bars := make([]contracts.RawBar, 0, len(rs.Data))
	for _, row := range rs.Data {
		bars = append(bars, contracts.RawBar{
			Code:        get(row, "code"),
			Date:        get(row, "date"),
			Open:        get(row, "open"),
			High:        get(row, "high"),
			Low:         get(row, "low"),
			Close:       get(row, "close"),
			PreClose:    get(row, "preclose"),
			Volume:      get(row, "volume"),
			Amount:      get(row, "amount"),
			AdjustFlag:  get(row, "adjustflag"),
			TradeStatus: get(row, "tradestatus"),
			IsST:        get(row, "isST"),
		})
	}
	return bars, nil
}
