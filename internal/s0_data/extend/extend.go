package extend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wonny/aegis-ingest/internal/contracts"
)

// ErrBoundaryMissing is returned in strict mode when the fresh series has no
// row at the archive's last date
var ErrBoundaryMissing = errors.New("splice boundary row missing from fetched series")

// Config holds extender settings
type Config struct {
	RequireBoundary bool `yaml:"require_boundary"` // false: unscaled append when boundary is missing
}

// Splice describes how a fresh series was joined to the archive
type Splice struct {
	Code     string             `json:"code"`
	Archived bool               `json:"archived"`  // instrument already had archived rows
	LastDate time.Time          `json:"last_date"` // archive boundary, zero when not archived
	Scaled   bool               `json:"scaled"`    // boundary found and k applied
	K        map[string]float64 `json:"k,omitempty"`
}

// Extender splices freshly normalized bars onto an archived series
// ⭐ SSOT: archive 연속성 유지 (splice rescale)
type Extender struct {
	reader contracts.ArchiveReader
	config Config
}

// New creates a new Extender
func New(reader contracts.ArchiveReader, config Config) *Extender {
	return &Extender{reader: reader, config: config}
}

// Extend returns the rows of fresh that should be appended for code.
//
// Without archived rows fresh is returned unchanged. Otherwise rows after the
// archive's last date are rescaled so the boundary day matches the archive.
// Rows on or before the last date are never returned. A missing boundary row
// degrades to an unscaled append unless RequireBoundary is set.
func (e *Extender) Extend(ctx context.Context, code string, fresh []contracts.NormalizedBar) ([]contracts.NormalizedBar, Splice, error) {
	splice := Splice{Code: code}

	lastDate, ok, err := e.reader.LatestDate(ctx, code)
	if err != nil {
		return nil, splice, fmt.Errorf("latest date %s: %w", code, err)
	}
	if !ok {
		return fresh, splice, nil
	}
	splice.Archived = true
	splice.LastDate = lastDate

	boundary := -1
	for i, b := range fresh {
		if b.Date.Equal(lastDate) {
			boundary = i
			break
		}
	}
	if boundary < 0 {
		if e.config.RequireBoundary {
			return nil, splice, fmt.Errorf("%s at %s: %w", code, lastDate.Format(contracts.DateLayout), ErrBoundaryMissing)
		}
		// archive 이전 구간은 절대 덮어쓰지 않음
		return after(fresh, lastDate), splice, nil
	}

	archived, err := e.reader.Rows(ctx, code, contracts.SpliceColumns)
	if err != nil {
		return nil, splice, fmt.Errorf("read archived %s: %w", code, err)
	}
	row := archived.Index(lastDate)
	if row < 0 {
		return nil, splice, fmt.Errorf("archived %s has no row at its latest date %s", code, lastDate.Format(contracts.DateLayout))
	}

	splice.K = Ratios(archived.Row(row), fresh[boundary])
	splice.Scaled = true

	// boundary 이후 행만 반환 (boundary 행은 이미 archive에 있음)
	out := after(fresh, lastDate)
	for i := range out {
		for col, k := range splice.K {
			out[i].Set(col, out[i].Value(col)*k)
		}
	}
	return out, splice, nil
}

// after returns a copy of the rows dated strictly after lastDate
func after(bars []contracts.NormalizedBar, lastDate time.Time) []contracts.NormalizedBar {
	out := make([]contracts.NormalizedBar, 0, len(bars))
	for _, b := range bars {
		if b.Date.After(lastDate) {
			out = append(out, b)
		}
	}
	return out
}

// Ratios computes archived/new per splice column; degenerate pairs give 1
func Ratios(archived, fresh contracts.NormalizedBar) map[string]float64 {
	k := make(map[string]float64, len(contracts.SpliceColumns))
	for _, col := range contracts.SpliceColumns {
		k[col] = ratio(archived.Value(col), fresh.Value(col))
	}
	return k
}

func ratio(archived, fresh float64) float64 {
	if math.IsNaN(archived) || math.IsNaN(fresh) || fresh == 0 {
		return 1
	}
	r := archived / fresh
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return 1
	}
	return r
}
