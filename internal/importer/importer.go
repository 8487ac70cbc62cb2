// Package importer bulk-loads coupons from JSON-lines files into a catalog.
//
// Files are decoded concurrently, one goroutine per file. Codes repeated
// across files are reported as conflicts before anything is written; within
// a run the first occurrence wins and later ones are rejected by the catalog
// exactly like a duplicate HTTP create.
package importer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/coupon-selector/internal/codec"
	"github.com/xenking/coupon-selector/internal/domain/coupon"
)

const (
	bloomFPR     = 0.001
	maxLineBytes = 1 << 20
	logEvery     = 10_000
)

// Entry is a decoded coupon with its source position.
type Entry struct {
	Coupon coupon.Coupon
	Line   int
}

// LineError is a line that could not be decoded.
type LineError struct {
	Path string
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// File holds the decoded contents of one input file.
type File struct {
	Path    string
	Entries []Entry
	Invalid []*LineError

	filter *bloom.BloomFilter
}

// Conflict is a code present in more than one file.
type Conflict struct {
	Code  string
	Files []string
}

// Report summarizes an import run.
type Report struct {
	Files      int
	Read       int
	Created    int
	Duplicates int
	Invalid    int
	Conflicts  []Conflict
}

// Options controls how files are read.
type Options struct {
	// Strict aborts on the first line that fails to decode instead of
	// recording it as invalid.
	Strict bool
}

// ReadFiles decodes all paths concurrently, preserving their order.
func ReadFiles(ctx context.Context, lg *zap.Logger, paths []string, opts Options) ([]*File, error) {
	files := make([]*File, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			f, err := readFile(ctx, lg, path, opts)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func readFile(ctx context.Context, lg *zap.Logger, path string, opts Options) (*File, error) {
	r, err := open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	f := &File{Path: path}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line++
		data := scanner.Bytes()
		if len(strings.TrimSpace(string(data))) == 0 {
			continue
		}

		c, err := codec.DecodeCoupon(jx.DecodeBytes(data))
		if err != nil {
			lineErr := &LineError{Path: path, Line: line, Err: err}
			if opts.Strict {
				return nil, lineErr
			}
			f.Invalid = append(f.Invalid, lineErr)
			continue
		}
		f.Entries = append(f.Entries, Entry{Coupon: c, Line: line})

		if len(f.Entries)%logEvery == 0 {
			lg.Info("Read progress", zap.String("file", path), zap.Int("coupons", len(f.Entries)))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan %s", path)
	}

	f.filter = bloom.NewWithEstimates(uint(max(len(f.Entries), 1)), bloomFPR)
	for _, e := range f.Entries {
		f.filter.AddString(e.Coupon.Code)
	}

	lg.Info("File read",
		zap.String("file", path),
		zap.Int("coupons", len(f.Entries)),
		zap.Int("invalid", len(f.Invalid)),
	)
	return f, nil
}

// open returns a reader for path, transparently decompressing .gz files.
func open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := pgzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	return &gzipFile{Reader: gz, file: f}, nil
}

type gzipFile struct {
	*pgzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	err := g.Reader.Close()
	if cerr := g.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// FindConflicts returns the codes that appear in two or more files, in order
// of first appearance. Each code is checked against the other files' bloom
// filters; a hit only counts once the code is seen in the other file too,
// so false positives never surface.
func FindConflicts(files []*File) []Conflict {
	var (
		order []string
		seen  = make(map[string][]int)
	)
	for i, f := range files {
		for _, e := range f.Entries {
			code := e.Coupon.Code
			if !inOtherFile(files, i, code) {
				continue
			}
			idx, ok := seen[code]
			if !ok {
				order = append(order, code)
			}
			if len(idx) == 0 || idx[len(idx)-1] != i {
				seen[code] = append(idx, i)
			}
		}
	}

	var out []Conflict
	for _, code := range order {
		idx := seen[code]
		if len(idx) < 2 {
			continue
		}
		paths := make([]string, len(idx))
		for j, fi := range idx {
			paths[j] = files[fi].Path
		}
		out = append(out, Conflict{Code: code, Files: paths})
	}
	return out
}

func inOtherFile(files []*File, self int, code string) bool {
	for j, f := range files {
		if j != self && f.filter != nil && f.filter.TestString(code) {
			return true
		}
	}
	return false
}

// Import appends every decoded coupon to catalog in file order.
// Duplicate and code-less coupons are counted, not fatal.
func Import(ctx context.Context, lg *zap.Logger, catalog coupon.Catalog, files []*File) (Report, error) {
	rep := Report{
		Files:     len(files),
		Conflicts: FindConflicts(files),
	}
	for _, c := range rep.Conflicts {
		lg.Warn("Code present in several files", zap.String("code", c.Code), zap.Strings("files", c.Files))
	}

	for _, f := range files {
		rep.Invalid += len(f.Invalid)
		for _, e := range f.Entries {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			rep.Read++

			err := catalog.Create(ctx, e.Coupon)
			switch {
			case err == nil:
				rep.Created++
			case errors.Is(err, coupon.ErrDuplicateCode):
				rep.Duplicates++
				lg.Debug("Duplicate code skipped",
					zap.String("code", e.Coupon.Code),
					zap.String("file", f.Path),
					zap.Int("line", e.Line),
				)
			case errors.Is(err, coupon.ErrCodeRequired):
				rep.Invalid++
				lg.Debug("Coupon without code skipped", zap.String("file", f.Path), zap.Int("line", e.Line))
			default:
				return rep, errors.Wrapf(err, "%s:%d: create %q", f.Path, e.Line, e.Coupon.Code)
			}

			if rep.Read%logEvery == 0 {
				lg.Info("Import progress", zap.Int("read", rep.Read), zap.Int("created", rep.Created))
			}
		}
	}
	return rep, nil
}
