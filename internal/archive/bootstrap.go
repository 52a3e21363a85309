package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/pkg/httputil"
	"github.com/wonny/aegis-ingest/pkg/logger"
)

// topLevel are the directories of a valid archive root
var topLevel = map[string]bool{
	"calendars":    true,
	InstrumentsDir: true,
	FeaturesDir:    true,
}

// Bootstrap downloads a tar.gz snapshot of a parquet archive and unpacks it
// into dir. A single wrapping directory inside the tarball is stripped.
func Bootstrap(ctx context.Context, client *httputil.Client, url, dir string, log *logger.Logger) error {
	if url == "" {
		return errors.New("bootstrap url is not configured")
	}
	log = log.Module("bootstrap")
	log.WithField("url", url).Info("downloading archive snapshot")

	resp, err := client.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("download snapshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download snapshot: unexpected status code: %d", resp.StatusCode)
	}

	files, err := extractTarGz(resp.Body, dir)
	if err != nil {
		return err
	}
	log.WithFields(map[string]interface{}{
		"dir":   dir,
		"files": files,
	}).Info("archive snapshot extracted")
	return nil
}

func extractTarGz(r io.Reader, dir string) (int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return 0, err
	}

	files := 0
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return files, fmt.Errorf("read tar entry: %w", err)
		}

		rel := stripWrapper(hdr.Name)
		if rel == "" {
			continue
		}
		target := filepath.Join(root, rel)
		if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return files, fmt.Errorf("tar entry %q escapes archive dir", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, err
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr); err != nil {
				return files, fmt.Errorf("extract %s: %w", rel, err)
			}
			files++
		}
	}
	return files, nil
}

// stripWrapper drops a leading directory that is not part of the archive layout
func stripWrapper(name string) string {
	clean := filepath.ToSlash(filepath.Clean(name))
	clean = strings.TrimPrefix(clean, "./")
	parts := strings.SplitN(clean, "/", 2)
	if len(parts) == 2 && !topLevel[parts[0]] {
		return parts[1]
	}
	if clean == "." || !topLevel[parts[0]] {
		return ""
	}
	return clean
}

func writeEntry(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// calendarWriter is implemented by stores whose calendar can be replaced wholesale
type calendarWriter interface {
	WriteCalendar(ctx context.Context, days []time.Time) error
}

// Import copies every instrument, the calendar and the given index baskets
// from src into dst (used to seed a database archive from a snapshot)
func Import(ctx context.Context, src, dst contracts.Archive, indices []string, log *logger.Logger) error {
	instruments, err := src.Instruments(ctx)
	if err != nil {
		return fmt.Errorf("list source instruments: %w", err)
	}

	for i, in := range instruments {
		frame, err := src.Rows(ctx, in.Code, contracts.AllColumns)
		if errors.Is(err, contracts.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", in.Code, err)
		}
		if err := dst.Append(ctx, in.Code, frame.Bars()); err != nil {
			return err
		}
		if (i+1)%500 == 0 {
			log.Infof("imported %d/%d instruments", i+1, len(instruments))
		}
	}

	days, err := src.Calendar(ctx)
	if err != nil {
		return fmt.Errorf("read source calendar: %w", err)
	}
	if cw, ok := dst.(calendarWriter); ok {
		if err := cw.WriteCalendar(ctx, days); err != nil {
			return err
		}
	}

	for _, name := range indices {
		members, err := src.ReadIndex(ctx, name)
		if err != nil {
			return fmt.Errorf("read index %s: %w", name, err)
		}
		if len(members) == 0 {
			continue
		}
		if err := dst.WriteIndex(ctx, name, members); err != nil {
			return err
		}
	}

	return dst.Flush(ctx)
}
