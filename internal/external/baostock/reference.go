package baostock

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/wonny/aegis-ingest/internal/contracts"
)

// FetchTradeDates returns the trading days in [start, end]
func (c *Client) FetchTradeDates(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	params := url.Values{}
	params.Set("start_date", start.Format(contracts.DateLayout))
	params.Set("end_date", end.Format(contracts.DateLayout))

	var dates []time.Time
	err := c.withRetry(ctx, "trade dates", func() error {
		rs, err := c.query(ctx, "/trade-dates", params)
		if err != nil {
			return err
		}
		dateCol, flagCol := rs.column("calendar_date"), rs.column("is_trading_day")
		if dateCol < 0 || flagCol < 0 {
			return fmt.Errorf("trade dates response missing fields %v", rs.Fields)
		}

		dates = dates[:0]
		for _, row := range rs.Data {
			if len(row) <= dateCol || len(row) <= flagCol || row[flagCol] != "1" {
				continue
			}
			d, err := contracts.ParseDay(row[dateCol])
			if err != nil {
				return fmt.Errorf("parse trade date %q: %w", row[dateCol], err)
			}
			dates = append(dates, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dates, nil
}

// FetchAllStocks lists the Shanghai/Shenzhen A shares known on day, in archive form
func (c *Client) FetchAllStocks(ctx context.Context, day time.Time) ([]string, error) {
	params := url.Values{}
	params.Set("day", day.Format(contracts.DateLayout))

	var codes []string
	err := c.withRetry(ctx, "all stocks", func() error {
		rs, err := c.query(ctx, "/all-stock", params)
		if err != nil {
			return err
		}
		codeCol := rs.column("code")
		if codeCol < 0 {
			return fmt.Errorf("all stock response missing code field")
		}

		codes = codes[:0]
		for _, row := range rs.Data {
			if len(row) <= codeCol || !contracts.IsAShare(row[codeCol]) {
				continue
			}
			code, err := contracts.FromProviderCode(row[codeCol])
			if err != nil {
				continue
			}
			codes = append(codes, code)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithField("count", len(codes)).Info("fetched instrument universe")
	return codes, nil
}
