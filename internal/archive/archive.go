// Package archive writes zstd-compressed registry snapshots to a blob store
// and restores them.
//
// An archive object is a single JSON header line followed by the JSON encoded
// memory.Snapshot, both inside one zstd frame.
package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"creaturecore/internal/blob"
	"creaturecore/internal/infra/persistence/memory"
	"creaturecore/pkg/domain"
)

// FormatVersion is written into every header.
const FormatVersion = 1

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "snapshots/"

const (
	contentType = "application/zstd"
	metaCount   = "count"
	metaFormat  = "format"
	keySuffix   = ".json.zst"
)

// ErrNoSnapshots is returned by Latest when the prefix is empty.
var ErrNoSnapshots = errors.New("no archived snapshots")

// Header precedes the snapshot body.
type Header struct {
	Version   int             `json:"version"`
	Count     domain.EntityID `json:"count"`
	CreatedAt time.Time       `json:"created_at"`
}

// StateExporter yields the committed registry state.
type StateExporter interface {
	ExportState() memory.Snapshot
}

// StateImporter replaces the committed registry state.
type StateImporter interface {
	ImportState(memory.Snapshot) error
}

// Archiver exports and restores snapshots under a key prefix.
type Archiver struct {
	store  blob.Store
	prefix string
	now    func() time.Time
}

// New returns an archiver writing under prefix (DefaultPrefix when empty).
func New(store blob.Store, prefix string) *Archiver {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Archiver{store: store, prefix: prefix, now: time.Now}
}

// Prefix returns the key prefix.
func (a *Archiver) Prefix() string { return a.prefix }

// Export writes the current state of src as a new archive object.
func (a *Archiver) Export(ctx context.Context, src StateExporter) (blob.Info, error) {
	snap := src.ExportState()
	hdr := Header{Version: FormatVersion, Count: snap.Count, CreatedAt: a.now().UTC()}
	payload, err := encode(hdr, snap)
	if err != nil {
		return blob.Info{}, err
	}
	key := fmt.Sprintf("%s%s-%010d%s", a.prefix, hdr.CreatedAt.Format("20060102T150405.000000000Z"), hdr.Count, keySuffix)
	info, err := a.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			metaCount:  strconv.FormatUint(uint64(hdr.Count), 10),
			metaFormat: strconv.Itoa(FormatVersion),
		},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("archive snapshot: %w", err)
	}
	return info, nil
}

// List returns archived snapshots, oldest first.
func (a *Archiver) List(ctx context.Context) ([]blob.Info, error) {
	infos, err := a.store.List(ctx, a.prefix)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out := infos[:0]
	for _, info := range infos {
		if strings.HasSuffix(info.Key, keySuffix) {
			out = append(out, info)
		}
	}
	return out, nil
}

// Latest returns the newest archived snapshot.
func (a *Archiver) Latest(ctx context.Context) (blob.Info, error) {
	infos, err := a.List(ctx)
	if err != nil {
		return blob.Info{}, err
	}
	if len(infos) == 0 {
		return blob.Info{}, ErrNoSnapshots
	}
	return infos[len(infos)-1], nil
}

// Load reads and decodes the archive stored at key.
func (a *Archiver) Load(ctx context.Context, key string) (Header, memory.Snapshot, error) {
	_, rc, err := a.store.Get(ctx, key)
	if err != nil {
		return Header{}, memory.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	defer rc.Close()

	dec, err := zstd.NewReader(rc)
	if err != nil {
		return Header{}, memory.Snapshot{}, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	br := bufio.NewReader(dec)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return Header{}, memory.Snapshot{}, fmt.Errorf("read header: %w", err)
	}
	var hdr Header
	if err := json.Unmarshal(line, &hdr); err != nil {
		return Header{}, memory.Snapshot{}, fmt.Errorf("decode header: %w", err)
	}
	if hdr.Version != FormatVersion {
		return hdr, memory.Snapshot{}, fmt.Errorf("unsupported snapshot version %d", hdr.Version)
	}
	var snap memory.Snapshot
	if err := json.NewDecoder(br).Decode(&snap); err != nil {
		return hdr, memory.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Count != hdr.Count {
		return hdr, memory.Snapshot{}, fmt.Errorf("header count %d does not match snapshot count %d", hdr.Count, snap.Count)
	}
	return hdr, snap, nil
}

// Restore loads the archive at key into dst. The destination validates the
// snapshot and keeps its state on failure.
func (a *Archiver) Restore(ctx context.Context, key string, dst StateImporter) (Header, error) {
	hdr, snap, err := a.Load(ctx, key)
	if err != nil {
		return hdr, err
	}
	if err := dst.ImportState(snap); err != nil {
		return hdr, fmt.Errorf("restore %s: %w", key, err)
	}
	return hdr, nil
}

func encode(hdr Header, snap memory.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	bw := bufio.NewWriter(enc)
	hb, err := json.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		return nil, err
	}
	if err := json.NewEncoder(bw).Encode(snap); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("zstd close: %w", err)
	}
	return buf.Bytes(), nil
}
