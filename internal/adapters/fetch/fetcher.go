// Package fetch downloads and extracts library source archives.
package fetch

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// Supported archive formats.
const (
	FormatTarGz  = "tar.gz"
	FormatTarXz  = "tar.xz"
	FormatTarBz2 = "tar.bz2"
	FormatTar    = "tar"
	FormatZip    = "zip"
)

var _ ports.Fetcher = (*Fetcher)(nil)

// Fetcher implements ports.Fetcher over HTTP.
type Fetcher struct {
	client *http.Client
	logger ports.Logger
}

// NewFetcher creates a new Fetcher using client. A nil client uses http.DefaultClient.
func NewFetcher(client *http.Client, logger ports.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, logger: logger}
}

// Fetch downloads src and extracts it into dest. Tar archives have the first
// path component of every entry stripped; zip archives are extracted as they
// are. dest must not exist; it only appears once extraction has succeeded.
func (f *Fetcher) Fetch(ctx context.Context, src domain.Source, dest string) error {
	if err := f.fetch(ctx, src, dest); err != nil {
		return errors.Join(domain.ErrFetchFailed, zerr.With(zerr.With(err, "url", src.URL), "dest", dest))
	}
	return nil
}

func (f *Fetcher) fetch(ctx context.Context, src domain.Source, dest string) error {
	format, err := DetectFormat(src)
	if err != nil {
		return err
	}

	f.logger.Info(fmt.Sprintf("downloading %s", src.URL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, http.NoBody)
	if err != nil {
		return zerr.Wrap(err, "failed to create request")
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return zerr.Wrap(err, "failed to download source")
	}
	defer resp.Body.Close() //nolint:errcheck // Body is fully consumed or abandoned on error

	if resp.StatusCode != http.StatusOK {
		return zerr.With(zerr.New("unexpected HTTP status"), "status", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), domain.DirPerm); err != nil {
		return zerr.Wrap(err, "failed to create sources directory")
	}

	partial, err := os.MkdirTemp(filepath.Dir(dest), "."+filepath.Base(dest)+"-")
	if err != nil {
		return zerr.Wrap(err, "failed to create extraction directory")
	}
	defer os.RemoveAll(partial) //nolint:errcheck // Removed after rename or on failure

	if format == FormatZip {
		if err := unzip(ctx, resp.Body, partial); err != nil {
			return err
		}
	} else {
		stream, err := decompress(resp.Body, format)
		if err != nil {
			return err
		}
		if c, ok := stream.(io.Closer); ok {
			defer c.Close() //nolint:errcheck // Read-only stream
		}

		if err := extract(ctx, tar.NewReader(stream), partial); err != nil {
			return err
		}
	}

	if err := os.Chmod(partial, domain.DirPerm); err != nil {
		return zerr.Wrap(err, "failed to set source directory mode")
	}
	if err := os.Rename(partial, dest); err != nil {
		return zerr.Wrap(err, "failed to move extracted source into place")
	}
	return nil
}

// DetectFormat returns the archive format of src, from its explicit format or the URL suffix.
func DetectFormat(src domain.Source) (string, error) {
	if src.Format != "" {
		switch src.Format {
		case FormatTarGz, "tgz":
			return FormatTarGz, nil
		case FormatTarXz, FormatTarBz2, FormatTar, FormatZip:
			return src.Format, nil
		}
		return "", zerr.With(zerr.New("unsupported archive format"), "format", src.Format)
	}

	u := src.URL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	switch {
	case strings.HasSuffix(u, ".tar.gz"), strings.HasSuffix(u, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(u, ".tar.xz"):
		return FormatTarXz, nil
	case strings.HasSuffix(u, ".tar.bz2"):
		return FormatTarBz2, nil
	case strings.HasSuffix(u, ".tar"):
		return FormatTar, nil
	case strings.HasSuffix(u, ".zip"):
		return FormatZip, nil
	}
	return "", zerr.New("cannot detect archive format, set source.format")
}

func decompress(r io.Reader, format string) (io.Reader, error) {
	switch format {
	case FormatTarGz:
		gz, err := pgzip.NewReader(r)
		if err != nil {
			return nil, zerr.Wrap(err, "failed to open gzip stream")
		}
		return gz, nil
	case FormatTarXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, zerr.Wrap(err, "failed to open xz stream")
		}
		return xr, nil
	case FormatTarBz2:
		return bzip2.NewReader(r), nil
	default:
		return r, nil
	}
}

func extract(ctx context.Context, tr *tar.Reader, dest string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return zerr.Wrap(err, "failed to read archive entry")
		}

		rel, ok := stripComponent(hdr.Name)
		if !ok {
			continue
		}
		target, err := within(dest, rel)
		if err != nil {
			return zerr.With(err, "entry", hdr.Name)
		}

		if err := writeEntry(tr, hdr, dest, rel, target); err != nil {
			return zerr.With(err, "entry", hdr.Name)
		}
	}
}

func writeEntry(tr *tar.Reader, hdr *tar.Header, dest, rel, target string) error {
	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, domain.DirPerm)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), domain.DirPerm); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, hdr.FileInfo().Mode().Perm()) //nolint:gosec // Target is checked to be inside dest
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil { //nolint:gosec // Sizes come from trusted upstream archives
			_ = out.Close()
			return err
		}
		return out.Close()
	case tar.TypeSymlink:
		if filepath.IsAbs(hdr.Linkname) {
			return zerr.With(zerr.New("archive entry escapes destination"), "link", hdr.Linkname)
		}
		if _, err := within(dest, path.Join(path.Dir(rel), filepath.ToSlash(hdr.Linkname))); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), domain.DirPerm); err != nil {
			return err
		}
		return os.Symlink(hdr.Linkname, target)
	case tar.TypeLink:
		linkRel, ok := stripComponent(hdr.Linkname)
		if !ok {
			return zerr.New("hard link to archive root")
		}
		old, err := within(dest, linkRel)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), domain.DirPerm); err != nil {
			return err
		}
		return os.Link(old, target)
	default:
		// Devices and fifos have no place in a source tree.
		return nil
	}
}

// unzip spools body to a file next to dest, since zip needs random access,
// and extracts every entry below dest.
func unzip(ctx context.Context, body io.Reader, dest string) error {
	spool, err := os.CreateTemp(filepath.Dir(dest), ".download-*.zip")
	if err != nil {
		return zerr.Wrap(err, "failed to create download file")
	}
	defer os.Remove(spool.Name()) //nolint:errcheck // Temporary download
	defer spool.Close()           //nolint:errcheck // Read-only after download

	size, err := io.Copy(spool, body)
	if err != nil {
		return zerr.Wrap(err, "failed to download source")
	}

	// Insecure names are rejected per entry below.
	zr, err := zip.NewReader(spool, size)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return zerr.Wrap(err, "failed to open zip archive")
	}

	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		rel := strings.TrimPrefix(filepath.ToSlash(zf.Name), "./")
		if strings.Trim(rel, "/") == "" {
			continue
		}
		target, err := within(dest, rel)
		if err != nil {
			return zerr.With(err, "entry", zf.Name)
		}
		if err := writeZipEntry(zf, target); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to extract archive entry"), "entry", zf.Name)
		}
	}
	return nil
}

func writeZipEntry(zf *zip.File, target string) error {
	mode := zf.Mode()
	switch {
	case mode.IsDir():
		return os.MkdirAll(target, domain.DirPerm)
	case !mode.IsRegular():
		// Zip symlinks and special files are not used by source releases.
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), domain.DirPerm); err != nil {
		return err
	}
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close() //nolint:errcheck // Read-only entry

	perm := mode.Perm()
	if perm == 0 {
		perm = domain.FilePerm
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm) //nolint:gosec // Target is checked to be inside dest
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil { //nolint:gosec // Sizes come from trusted upstream archives
		_ = out.Close()
		return err
	}
	return out.Close()
}

// stripComponent drops the first path component. Entries that are only the
// top-level directory report false.
func stripComponent(name string) (string, bool) {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	_, rest, ok := strings.Cut(name, "/")
	if !ok || strings.Trim(rest, "/") == "" {
		return "", false
	}
	return rest, true
}

// within joins rel to dest and rejects results outside dest.
func within(dest, rel string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(rel))
	if target != dest && !strings.HasPrefix(target, dest+string(filepath.Separator)) {
		return "", zerr.New("archive entry escapes destination")
	}
	return target, nil
}
