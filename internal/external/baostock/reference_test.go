package baostock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-ingest/pkg/config"
	"github.com/wonny/aegis-ingest/pkg/httputil"
	"github.com/wonny/aegis-ingest/pkg/logger"
)

func newReferenceServer(t *testing.T) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"error_code":"0","error_msg":"success","session_id":"x"}`))
	})
	mux.HandleFunc("/trade-dates", func(w http.ResponseWriter, _ *http.Request) {
		writeRS(w, resultSet{ErrorCode: "0", Fields: []string{"calendar_date", "is_trading_day"}, Data: [][]string{
			{"2024-01-01", "0"},
			{"2024-01-02", "1"},
			{"2024-01-03", "1"},
		}})
	})
	mux.HandleFunc("/all-stock", func(w http.ResponseWriter, _ *http.Request) {
		writeRS(w, resultSet{ErrorCode: "0", Fields: []string{"code", "tradeStatus", "code_name"}, Data: [][]string{
			{"sh.000001", "1", "上证综合指数"},
			{"sh.600000", "1", "浦发银行"},
			{"sz.000001", "1", "平安银行"},
			{"sz.399001", "1", "深证成指"},
		}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return NewClient(config.ProviderConfig{BaseURL: srv.URL},
		httputil.New(logger.Nop(), time.Second).DisableRetry(), logger.Nop(), WithRetries(2, time.Millisecond))
}

func TestFetchTradeDates(t *testing.T) {
	c := newReferenceServer(t)
	dates, err := c.FetchTradeDates(context.Background(),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, dates, 2)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), dates[0])
}

func TestFetchAllStocksFiltersIndices(t *testing.T) {
	c := newReferenceServer(t)
	codes, err := c.FetchAllStocks(context.Background(), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []string{"SH600000", "SZ000001"}, codes)
}
