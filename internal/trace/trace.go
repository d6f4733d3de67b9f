// Package trace records step snapshots to a JSONL file and reads them back.
//
// A trace file starts with a plain JSON header line. Every following line is
// one driver.StepResult. When the header says compressed, everything after
// the header line is a single zstd stream.
package trace

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/nvandessel/drawloop/internal/driver"
)

// FormatVersion is the header version written by this package.
const FormatVersion = 1

// MaxLineSize bounds a single decoded step line (16MB).
const MaxLineSize = 16 * 1024 * 1024

// ErrUnsupportedVersion is returned when a trace header has an unknown version.
var ErrUnsupportedVersion = errors.New("unsupported trace version")

// Header is the plain-text first line of a trace file.
type Header struct {
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	PoolSize   int       `json:"pool_size"`
	TotalSteps int       `json:"total_steps"`
	Seed       uint64    `json:"seed"`
	Compressed bool      `json:"compressed"`
}

// Writer appends step snapshots to a trace file. It implements
// driver.Renderer so it can sit next to any other renderer.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
	header Header
	steps  int
}

// Create truncates path and writes the header. Version and CreatedAt are
// filled in when zero.
func Create(path string, h Header) (*Writer, error) {
	if h.Version == 0 {
		h.Version = FormatVersion
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}

	headerBytes, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("marshaling header: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	if _, err := f.Write(append(headerBytes, '\n')); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("writing header: %w", err)
	}

	tw := &Writer{f: f, header: h}
	var body io.Writer = f
	if h.Compressed {
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("creating zstd writer: %w", err)
		}
		tw.enc = enc
		body = enc
	}
	tw.w = bufio.NewWriterSize(body, 128*1024)
	return tw, nil
}

// Header returns the header written at creation.
func (w *Writer) Header() Header {
	return w.header
}

// Steps returns how many snapshots have been written.
func (w *Writer) Steps() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.steps
}

// Render implements driver.Renderer.
func (w *Writer) Render(_ context.Context, res driver.StepResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.w == nil {
		return fmt.Errorf("trace writer closed")
	}
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshaling step %d: %w", res.Step, err)
	}
	if _, err := w.w.Write(b); err != nil {
		return fmt.Errorf("writing step %d: %w", res.Step, err)
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing step %d: %w", res.Step, err)
	}
	w.steps++
	return w.w.Flush()
}

// Close flushes buffered steps, finishes the zstd stream and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return nil
	}
	var errs []error
	if err := w.w.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flushing: %w", err))
	}
	if w.enc != nil {
		if err := w.enc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing zstd writer: %w", err))
		}
		w.enc = nil
	}
	if err := w.f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing file: %w", err))
	}
	w.f = nil
	w.w = nil
	return errors.Join(errs...)
}

// Reader streams step snapshots from a trace file.
type Reader struct {
	f       *os.File
	dec     *zstd.Decoder
	scanner *bufio.Scanner
	header  Header
	line    int
}

// Open reads and checks the header of the trace at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}

	br := bufio.NewReader(f)
	headerLine, err := br.ReadBytes('\n')
	if err != nil {
		_ = f.Close()
		if errors.Is(err, io.EOF) && len(bytes.TrimSpace(headerLine)) == 0 {
			return nil, fmt.Errorf("file is empty")
		}
		return nil, fmt.Errorf("reading header line: %w", err)
	}

	var h Header
	if err := json.Unmarshal(bytes.TrimSpace(headerLine), &h); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if h.Version != FormatVersion {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}

	r := &Reader{f: f, header: h}
	var body io.Reader = br
	if h.Compressed {
		dec, err := zstd.NewReader(br)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("creating zstd reader: %w", err)
		}
		r.dec = dec
		body = dec
	}
	r.scanner = bufio.NewScanner(body)
	r.scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	r.line = 1
	return r, nil
}

// Header returns the parsed header.
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next snapshot, or io.EOF after the last one.
func (r *Reader) Next() (driver.StepResult, error) {
	for r.scanner.Scan() {
		r.line++
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var res driver.StepResult
		if err := json.Unmarshal(line, &res); err != nil {
			return driver.StepResult{}, fmt.Errorf("parsing line %d: %w", r.line, err)
		}
		return res, nil
	}
	if err := r.scanner.Err(); err != nil {
		return driver.StepResult{}, fmt.Errorf("reading line %d: %w", r.line+1, err)
	}
	return driver.StepResult{}, io.EOF
}

// Close releases the decoder and the file.
func (r *Reader) Close() error {
	if r.dec != nil {
		r.dec.Close()
		r.dec = nil
	}
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// Read loads a whole trace.
func Read(path string) (Header, []driver.StepResult, error) {
	r, err := Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer r.Close()

	var steps []driver.StepResult
	for {
		res, err := r.Next()
		if errors.Is(err, io.EOF) {
			return r.Header(), steps, nil
		}
		if err != nil {
			return r.Header(), steps, err
		}
		steps = append(steps, res)
	}
}
