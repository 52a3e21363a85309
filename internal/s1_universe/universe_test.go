package s1_universe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-ingest/internal/archive"
	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/pkg/httputil"
	"github.com/wonny/aegis-ingest/pkg/logger"
)

const constituentsPage = `<html><body>
<table class="list">
  <tr><th>代码</th><th>名称</th></tr>
  <tr><td>600000</td><td>浦发银行</td><td>000300</td></tr>
  <tr><td> 000001 </td><td>平安银行</td></tr>
  <tr><td>300750</td><td>宁德时代</td></tr>
  <tr><td>600000</td><td>duplicate</td></tr>
  <tr><td>n/a</td><td>footer</td></tr>
</table>
</body></html>`

func day(s string) time.Time {
	d, err := contracts.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestHTMLSource_Members(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if r.URL.Path == "/index/csi500" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(constituentsPage))
	}))
	defer srv.Close()

	src := NewHTMLSource(httputil.New(logger.Nop(), time.Second).DisableRetry(), srv.URL+"/index/{index}", logger.Nop())

	codes, err := src.Members(context.Background(), "CSI300")
	require.NoError(t, err)
	assert.Equal(t, "/index/csi300", path)
	assert.Equal(t, []string{"SH600000", "SZ000001", "SZ300750"}, codes)

	_, err = src.Members(context.Background(), "CSI500")
	var statusErr *httputil.StatusError
	assert.True(t, errors.As(err, &statusErr))
}

func TestHTMLSource_EmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html><body><p>maintenance</p></body></html>"))
	}))
	defer srv.Close()

	src := NewHTMLSource(httputil.New(logger.Nop(), time.Second).DisableRetry(), srv.URL, logger.Nop())
	_, err := src.Members(context.Background(), "CSI100")
	assert.ErrorContains(t, err, "no constituents")

	_, err = NewHTMLSource(httputil.New(logger.Nop(), time.Second), "", logger.Nop()).Members(context.Background(), "CSI100")
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	existing := []contracts.Instrument{
		{Code: "SH600000", Start: day("2020-01-02"), End: day("2024-01-02")},
		{Code: "SH600001", Start: day("2020-01-02"), End: day("2023-06-30")},
	}

	merged, added := Merge(existing, []string{"SH600000", "SZ000001"}, day("2024-01-03"))
	assert.Equal(t, 1, added)
	assert.Equal(t, []contracts.Instrument{
		{Code: "SH600000", Start: day("2020-01-02"), End: day("2024-01-03")},
		{Code: "SH600001", Start: day("2020-01-02"), End: day("2023-06-30")},
		{Code: "SZ000001", Start: day("2024-01-03"), End: day("2024-01-03")},
	}, merged)
	assert.Equal(t, day("2024-01-02"), existing[0].End, "input is not mutated")
}

type staticSource map[string][]string

func (s staticSource) Members(_ context.Context, index string) ([]string, error) {
	codes, ok := s[index]
	if !ok {
		return nil, errors.New("unknown index")
	}
	return codes, nil
}

func TestRefresher(t *testing.T) {
	store := archive.NewParquetStore(t.TempDir(), logger.Nop())
	r := NewRefresher(staticSource{"CSI300": {"SH600000", "SZ000001"}}, store, logger.Nop())

	require.NoError(t, r.Refresh(context.Background(), "CSI300", day("2024-01-02")))
	require.NoError(t, r.Refresh(context.Background(), "CSI300", day("2024-01-03")))

	members, err := store.ReadIndex(context.Background(), "CSI300")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, day("2024-01-02"), members[0].Start)
	assert.Equal(t, day("2024-01-03"), members[0].End)

	assert.Error(t, r.Refresh(context.Background(), "CSI500", day("2024-01-03")))
}
