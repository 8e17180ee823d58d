package backup

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

const (
	ioBufferSize = 256 * 1024
	maxLinkHops  = 40
)

// Stats counts what an archive operation wrote.
type Stats struct {
	Files int
	Dirs  int
	Bytes int64
}

// Archiver writes a directory tree into a zip file.
type Archiver struct {
	fs    afero.Fs
	level int
}

// NewArchiver creates an Archiver on fs using the default deflate level.
func NewArchiver(fs afero.Fs) *Archiver {
	return &Archiver{fs: fs, level: flate.DefaultCompression}
}

// Archive compresses every entry below src into the zip file dst.
// The archive is written to a temp file next to dst and renamed into place,
// so an existing dst is replaced only by a complete archive.
func (a *Archiver) Archive(ctx context.Context, src, dst string) (stats Stats, retErr error) {
	tmp, err := afero.TempFile(a.fs, filepath.Dir(dst), ".mods-*.tmp")
	if err != nil {
		return stats, errors.Mark(errors.Wrap(err, "create temp archive"), ErrDestinationUnwritable)
	}
	tmpName := tmp.Name()

	defer func() {
		if retErr != nil {
			tmp.Close()
			a.fs.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriterSize(tmp, ioBufferSize)
	zw := zip.NewWriter(bw)
	level := a.level
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	stats, err = a.writeTree(ctx, zw, src, tmpName)
	if err != nil {
		zw.Close()
		return stats, err
	}

	if err := zw.Close(); err != nil {
		return stats, markWrite(err, "close zip writer")
	}
	if err := bw.Flush(); err != nil {
		return stats, markWrite(err, "flush archive")
	}
	if err := tmp.Close(); err != nil {
		return stats, markWrite(err, "close temp archive")
	}
	if err := a.fs.Rename(tmpName, dst); err != nil {
		return stats, markWrite(err, "rename temp archive")
	}
	return stats, nil
}

func (a *Archiver) writeTree(ctx context.Context, zw *zip.Writer, src, skip string) (Stats, error) {
	var stats Stats
	src, err := a.resolveRoot(src)
	if err != nil {
		return stats, err
	}
	err = afero.Walk(a.fs, src, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return errors.Mark(errors.Wrapf(walkErr, "walk %s", path), ErrSourceUnavailable)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == src || path == skip {
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return errors.Wrapf(err, "relative path for %s", path)
		}
		name := filepath.ToSlash(rel)

		switch {
		case info.IsDir():
			stats.Dirs++
			return a.writeDir(zw, name, info)
		case info.Mode()&os.ModeSymlink != 0:
			if lr, ok := a.fs.(afero.LinkReader); ok {
				stats.Files++
				return a.writeSymlink(zw, lr, path, name, info)
			}
		}

		n, err := a.writeFile(zw, path, name, info)
		if err != nil {
			return err
		}
		stats.Files++
		stats.Bytes += n
		return nil
	})
	return stats, err
}

// resolveRoot follows src while it is a symlink so the walk starts at the
// real directory. Links below the root are stored, not followed.
func (a *Archiver) resolveRoot(src string) (string, error) {
	lst, ok := a.fs.(afero.Lstater)
	if !ok {
		return src, nil
	}
	lr, ok := a.fs.(afero.LinkReader)
	if !ok {
		return src, nil
	}

	for i := 0; i < maxLinkHops; i++ {
		info, _, err := lst.LstatIfPossible(src)
		if err != nil {
			return "", errors.Mark(errors.Wrapf(err, "stat source %s", src), ErrSourceUnavailable)
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return src, nil
		}
		target, err := lr.ReadlinkIfPossible(src)
		if err != nil {
			return "", errors.Mark(errors.Wrapf(err, "read link %s", src), ErrSourceUnavailable)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(src), target)
		}
		src = target
	}
	return "", errors.Mark(errors.Newf("too many links resolving %s", src), ErrSourceUnavailable)
}

func (a *Archiver) writeDir(zw *zip.Writer, name string, info os.FileInfo) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return errors.Wrapf(err, "zip header for %s", name)
	}
	header.Name = name + "/"
	header.Method = zip.Store
	if _, err := zw.CreateHeader(header); err != nil {
		return markWrite(err, "write directory entry "+name)
	}
	return nil
}

// Symlinks are stored, not followed.
func (a *Archiver) writeSymlink(zw *zip.Writer, lr afero.LinkReader, path, name string, info os.FileInfo) error {
	target, err := lr.ReadlinkIfPossible(path)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "read link %s", path), ErrSourceUnavailable)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return errors.Wrapf(err, "zip header for %s", name)
	}
	header.Name = name
	header.Method = zip.Store

	w, err := zw.CreateHeader(header)
	if err != nil {
		return markWrite(err, "write link entry "+name)
	}
	if _, err := w.Write([]byte(target)); err != nil {
		return markWrite(err, "write link entry "+name)
	}
	return nil
}

func (a *Archiver) writeFile(zw *zip.Writer, path, name string, info os.FileInfo) (int64, error) {
	f, err := a.fs.Open(path)
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "open %s", path), ErrSourceUnavailable)
	}
	defer f.Close()

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return 0, errors.Wrapf(err, "zip header for %s", name)
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return 0, markWrite(err, "write entry "+name)
	}
	n, err := io.Copy(w, f)
	if err != nil {
		return n, markWrite(err, "copy "+path)
	}
	return n, nil
}

func markWrite(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrArchiveWrite)
}
