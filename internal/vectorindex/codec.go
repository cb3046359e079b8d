package vectorindex

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/coder/hnsw"
	"golang.org/x/crypto/blake2b"
)

const (
	indexFileName = "index.hnsw"
	fileVersion   = uint32(1)
)

var (
	fileMagic = [8]byte{'D', 'Q', 'H', 'N', 'S', 'W', 0, '\n'}

	ErrCorruptIndex = errors.New("vector index file is corrupt")
)

// header precedes the exported graph. Checksum is blake2b-256 of the payload.
type header struct {
	Magic    [8]byte
	Version  uint32
	Dims     uint32
	Count    uint32
	Checksum [32]byte
}

func encodeGraph(g *hnsw.Graph[uint32], dims, count int) ([]byte, error) {
	var payload bytes.Buffer
	if err := g.Export(&payload); err != nil {
		return nil, fmt.Errorf("export hnsw graph failed: %w", err)
	}

	h := header{
		Magic:    fileMagic,
		Version:  fileVersion,
		Dims:     uint32(dims),
		Count:    uint32(count),
		Checksum: blake2b.Sum256(payload.Bytes()),
	}
	var out bytes.Buffer
	out.Grow(binary.Size(h) + payload.Len())
	if err := binary.Write(&out, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("write index header failed: %w", err)
	}
	out.Write(payload.Bytes())
	return out.Bytes(), nil
}

func decodeGraph(raw []byte, efSearch int) (*hnsw.Graph[uint32], header, error) {
	var h header
	r := bytes.NewReader(raw)
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, h, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	if h.Magic != fileMagic {
		return nil, h, fmt.Errorf("%w: bad magic", ErrCorruptIndex)
	}
	if h.Version != fileVersion {
		return nil, h, fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, h.Version)
	}
	payload := raw[len(raw)-r.Len():]
	if blake2b.Sum256(payload) != h.Checksum {
		return nil, h, fmt.Errorf("%w: checksum mismatch", ErrCorruptIndex)
	}

	g := newGraph(0, efSearch)
	if err := g.Import(bytes.NewReader(payload)); err != nil {
		return nil, h, fmt.Errorf("import hnsw graph failed: %w", err)
	}
	g.EfSearch = efSearch
	return g, h, nil
}

func newGraph(m, ef int) *hnsw.Graph[uint32] {
	g := hnsw.NewGraph[uint32]()
	g.Distance = hnsw.CosineDistance
	if m > 0 {
		g.M = m
	}
	if ef > 0 {
		g.EfSearch = ef
	}
	return g
}

// writeFileAtomic leaves either the previous file or the complete new one
// at path, never a partial write.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir failed: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index file failed: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write temp index file failed: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp index file failed: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp index file failed: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename index file failed: %w", err)
	}
	return nil
}
