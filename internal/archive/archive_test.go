package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/pkg/httputil"
	"github.com/wonny/aegis-ingest/pkg/logger"
)

func day(s string) time.Time {
	d, err := contracts.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func sampleBar(code, date string, close float64) contracts.NormalizedBar {
	return contracts.NormalizedBar{
		Code: code, Date: day(date),
		Open: close, High: close, Low: close, Close: close,
		Volume: 100, Amount: close * 100, Change: math.NaN(), Factor: 1,
	}
}

func TestParquetStore_AppendMergeAndFlush(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewParquetStore(dir, logger.Nop())

	exists, err := s.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Append(ctx, "SH600000", []contracts.NormalizedBar{
		sampleBar("SH600000", "2024-01-02", 10),
		sampleBar("SH600000", "2024-01-03", 11),
	}))
	// duplicate date overwrites
	require.NoError(t, s.Append(ctx, "SH600000", []contracts.NormalizedBar{
		sampleBar("SH600000", "2024-01-03", 12),
		sampleBar("SH600000", "2024-01-04", 13),
	}))
	require.NoError(t, s.Flush(ctx))

	exists, err = s.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	last, ok, err := s.LatestDate(ctx, "SH600000")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day("2024-01-04"), last)

	frame, err := s.Rows(ctx, "SH600000", []string{contracts.ColClose, contracts.ColChange})
	require.NoError(t, err)
	assert.Equal(t, 3, frame.Len())
	closes, _ := frame.Column(contracts.ColClose)
	assert.Equal(t, []float64{10, 12, 13}, closes)
	changes, _ := frame.Column(contracts.ColChange)
	assert.True(t, math.IsNaN(changes[0]), "NaN survives the round trip")
	assert.False(t, frame.Has(contracts.ColVolume))

	instruments, err := s.Instruments(ctx)
	require.NoError(t, err)
	require.Len(t, instruments, 1)
	assert.Equal(t, contracts.Instrument{Code: "SH600000", Start: day("2024-01-02"), End: day("2024-01-04")}, instruments[0])

	end, ok, err := s.CalendarEnd(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day("2024-01-04"), end)
}

func TestParquetStore_UnknownInstrument(t *testing.T) {
	s := NewParquetStore(t.TempDir(), logger.Nop())

	_, ok, err := s.LatestDate(context.Background(), "SZ000001")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Rows(context.Background(), "SZ000001", contracts.AllColumns)
	assert.True(t, errors.Is(err, contracts.ErrNotFound))
}

func TestParquetStore_FlushWidensExistingRanges(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, WriteInstrumentFile(filepath.Join(dir, "instruments", "all.txt"), []contracts.Instrument{
		{Code: "SH600000", Start: day("2020-01-02"), End: day("2023-12-29")},
		{Code: "SZ000001", Start: day("2020-01-02"), End: day("2023-12-29")},
	}))

	s := NewParquetStore(dir, logger.Nop())
	require.NoError(t, s.Append(ctx, "SH600000", []contracts.NormalizedBar{sampleBar("SH600000", "2024-01-02", 10)}))
	require.NoError(t, s.Flush(ctx))

	instruments, err := s.Instruments(ctx)
	require.NoError(t, err)
	require.Len(t, instruments, 2)
	assert.Equal(t, day("2024-01-02"), instruments[0].End)
	assert.Equal(t, day("2020-01-02"), instruments[0].Start, "start is not narrowed by a partial file")
	assert.Equal(t, day("2023-12-29"), instruments[1].End)
}

func TestIndexFilesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir(), logger.Nop())
	members := []contracts.Instrument{
		{Code: "SZ000001", Start: day("2024-01-02"), End: day("2024-01-02")},
		{Code: "SH600000", Start: day("2023-06-01"), End: day("2024-01-02")},
	}
	require.NoError(t, s.WriteIndex(ctx, "CSI300", members))

	got, err := s.ReadIndex(ctx, "CSI300")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "SH600000", got[0].Code)

	_, err = os.Stat(filepath.Join(s.Dir(), "instruments", "csi300.txt"))
	assert.NoError(t, err)

	missing, err := s.ReadIndex(ctx, "CSI500")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestCalendarFileDedupesAndSorts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendars", "day.txt")
	require.NoError(t, WriteCalendarFile(path, []time.Time{day("2024-01-03"), day("2024-01-02"), day("2024-01-03")}))

	days, err := ReadCalendarFile(path)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day("2024-01-02"), day("2024-01-03")}, days)
}

func TestReadInstrumentFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "all.txt")
	require.NoError(t, os.WriteFile(path, []byte("SH600000\t2024-01-02\n"), 0o644))
	_, err := ReadInstrumentFile(path)
	assert.Error(t, err)
}

func TestMemoryStoreDropColumn(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.Seed("SH600000", []contracts.NormalizedBar{sampleBar("SH600000", "2024-01-02", 10)})
	m.DropColumn("SH600000", contracts.ColVolume)

	f, err := m.Rows(ctx, "SH600000", contracts.RequiredColumns)
	require.NoError(t, err)
	assert.True(t, f.Has(contracts.ColClose))
	assert.False(t, f.Has(contracts.ColVolume))

	_, err = m.Rows(ctx, "SZ000001", contracts.RequiredColumns)
	assert.True(t, errors.Is(err, contracts.ErrNotFound))
}

func TestStripWrapper(t *testing.T) {
	tests := map[string]string{
		"qlib_data/calendars/day.txt":   "calendars/day.txt",
		"./features/sh600000.parquet":   "features/sh600000.parquet",
		"calendars":                     "calendars",
		"qlib_data":                     "",
		"README.md":                     "",
		"snapshot/instruments/all.txt":  "instruments/all.txt",
	}
	for in, want := range tests {
		assert.Equal(t, want, stripWrapper(in), in)
	}
}

func buildSnapshot(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestBootstrapExtractsSnapshot(t *testing.T) {
	snapshot := buildSnapshot(t, map[string]string{
		"cn_data/calendars/day.txt":       "2024-01-02\n2024-01-03\n",
		"cn_data/instruments/all.txt":     "SH600000\t2024-01-02\t2024-01-03\n",
		"cn_data/features/placeholder.md": "x",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(snapshot)
	}))
	defer srv.Close()

	dir := t.TempDir()
	client := httputil.New(logger.Nop(), time.Second).DisableRetry()
	require.NoError(t, Bootstrap(context.Background(), client, srv.URL, dir, logger.Nop()))

	s := NewParquetStore(dir, logger.Nop())
	exists, err := s.Exists(context.Background())
	require.NoError(t, err)
	assert.True(t, exists)

	end, ok, err := s.CalendarEnd(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day("2024-01-03"), end)
}

func TestBootstrapRejectsTraversal(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "calendars/../../evil", Size: 1, Mode: 0o644, Typeflag: tar.TypeReg}))
	tw.Write([]byte("x"))
	tw.Close()
	gz.Close()

	dir := t.TempDir()
	_, err := extractTarGz(&buf, filepath.Join(dir, "archive"))
	require.NoError(t, err, "the escaping prefix is stripped as a wrapper")
	_, statErr := os.Stat(filepath.Join(dir, "evil"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestBootstrapWithoutURL(t *testing.T) {
	err := Bootstrap(context.Background(), httputil.New(logger.Nop(), time.Second), "", t.TempDir(), logger.Nop())
	assert.Error(t, err)
}

func TestImportCopiesSeriesCalendarAndIndices(t *testing.T) {
	ctx := context.Background()
	src := NewMemoryStore()
	src.Seed("SH600000", []contracts.NormalizedBar{
		sampleBar("SH600000", "2024-01-02", 10),
		sampleBar("SH600000", "2024-01-03", 11),
	})
	require.NoError(t, src.WriteIndex(ctx, "CSI300", []contracts.Instrument{{Code: "SH600000", Start: day("2024-01-02"), End: day("2024-01-03")}}))

	dst := NewParquetStore(t.TempDir(), logger.Nop())
	require.NoError(t, Import(ctx, src, dst, []string{"CSI300", "CSI500"}, logger.Nop()))

	last, ok, err := dst.LatestDate(ctx, "SH600000")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day("2024-01-03"), last)

	members, err := dst.ReadIndex(ctx, "CSI300")
	require.NoError(t, err)
	assert.Len(t, members, 1)

	days, err := dst.Calendar(ctx)
	require.NoError(t, err)
	assert.Len(t, days, 2)
}

func TestRemoveStaleTemp(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	stale := filepath.Join(dir, FeaturesDir, "sh600000.parquet.tmp")
	fresh := filepath.Join(dir, FeaturesDir, "sz000001.parquet.tmp")
	keep := filepath.Join(dir, FeaturesDir, "sh600000.parquet")
	for _, p := range []string{stale, fresh, keep} {
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	old := now.Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(keep, old, old))

	n, err := RemoveStaleTemp(dir, time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.FileExists(t, keep)

	n, err = RemoveStaleTemp(filepath.Join(dir, "missing"), time.Hour, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}
