// Package pool writes expanded sweep points into batch files for the
// simulation backend. A pool file is a plain JSON header line followed by a
// gzip-compressed JSON payload, so the header can be inspected without
// decompressing anything.
package pool

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nvandessel/namsweep/internal/experiment"
	"github.com/nvandessel/namsweep/internal/fsutil"
)

// FormatVersion is the version written to every pool header.
const FormatVersion = 1

// Extension is appended to every pool file name.
const Extension = ".in.gz"

// MaxDecompressedSize is the maximum allowed size of a decompressed payload (512MB).
const MaxDecompressedSize = 512 * 1024 * 1024

// ErrChecksumMismatch is returned when a payload does not match its header.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// Header is the plain-text first line of a pool file.
type Header struct {
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	Checksum    string    `json:"checksum"`
	Document    string    `json:"document"`
	Index       int       `json:"index"`
	Experiments []string  `json:"experiments"`
	PointCount  int       `json:"point_count"`
	FirstPoint  int       `json:"first_point"`
	Seed        int64     `json:"seed"`
	Compressed  bool      `json:"compressed"`
}

// File is a decoded pool: its header and the points it carries.
type File struct {
	Header Header             `json:"header"`
	Points []experiment.Point `json:"points"`
}

// FileName returns the pool file name for batch i of a document, e.g.
// "threshold_sweep_3.in.gz" for "sweeps/threshold_sweep.json".
func FileName(document string, i int) string {
	base := filepath.Base(document)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s_%d%s", base, i, Extension)
}

// Partition splits points into consecutive batches of at most size points.
// A non-positive size yields a single batch.
func Partition(points []experiment.Point, size int) [][]experiment.Point {
	if len(points) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(points)
	}

	batches := make([][]experiment.Point, 0, (len(points)+size-1)/size)
	for start := 0; start < len(points); start += size {
		end := min(start+size, len(points))
		batches = append(batches, points[start:end])
	}
	return batches
}

// Encode fills in the derived header fields of f and returns the file bytes.
func Encode(f *File) ([]byte, error) {
	f.Header.Version = FormatVersion
	f.Header.PointCount = len(f.Points)
	f.Header.Compressed = true
	f.Header.Experiments = experimentNames(f.Points)
	if len(f.Points) > 0 {
		f.Header.FirstPoint = f.Points[0].Index
	}
	f.Header.Checksum = ""

	payload, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gzw.Write(payload); err != nil {
		return nil, fmt.Errorf("compressing payload: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}

	f.Header.Checksum = checksum(compressed.Bytes())
	headerBytes, err := json.Marshal(f.Header)
	if err != nil {
		return nil, fmt.Errorf("marshaling header: %w", err)
	}

	out := make([]byte, 0, len(headerBytes)+1+compressed.Len())
	out = append(out, headerBytes...)
	out = append(out, '\n')
	return append(out, compressed.Bytes()...), nil
}

// Write encodes f and atomically replaces path with it.
func Write(path string, f *File) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return fsutil.WriteFile(path, data, 0o640)
}

// Read reads a pool file, verifies the checksum and decodes the points.
func Read(path string) (*File, error) {
	header, compressed, err := open(path)
	if err != nil {
		return nil, err
	}
	if err := verify(header, compressed); err != nil {
		return nil, err
	}

	gzr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	decompressed, err := io.ReadAll(io.LimitReader(gzr, MaxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}
	if int64(len(decompressed)) > MaxDecompressedSize {
		return nil, fmt.Errorf("decompressed payload exceeds maximum size of %d bytes", MaxDecompressedSize)
	}

	var f File
	if err := json.Unmarshal(decompressed, &f); err != nil {
		return nil, fmt.Errorf("parsing pool data: %w", err)
	}
	if len(f.Points) != header.PointCount {
		return nil, fmt.Errorf("header lists %d points, payload has %d", header.PointCount, len(f.Points))
	}
	f.Header = *header
	return &f, nil
}

// ReadHeader reads only the header line of a pool file.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	return readHeader(bufio.NewReader(f))
}

// VerifyChecksum checks the payload of a pool file against its header
// without decompressing it.
func VerifyChecksum(path string) error {
	header, compressed, err := open(path)
	if err != nil {
		return err
	}
	return verify(header, compressed)
}

func open(path string) (*Header, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	header, err := readHeader(reader)
	if err != nil {
		return nil, nil, err
	}
	compressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading compressed payload: %w", err)
	}
	return header, compressed, nil
}

func readHeader(r *bufio.Reader) (*Header, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header line: %w", err)
	}

	var header Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &header); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported pool format version %d", header.Version)
	}
	return &header, nil
}

func verify(header *Header, compressed []byte) error {
	if actual := checksum(compressed); actual != header.Checksum {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, header.Checksum, actual)
	}
	return nil
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

func experimentNames(points []experiment.Point) []string {
	var names []string
	for _, p := range points {
		if len(names) == 0 || names[len(names)-1] != p.Experiment {
			names = append(names, p.Experiment)
		}
	}
	return names
}
