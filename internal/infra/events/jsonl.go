package events

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"creaturecore/pkg/domain"
)

var _ domain.EventSink = (*JSONLSink)(nil)

// LogRecord is one line of the event log.
type LogRecord struct {
	ID    string       `json:"id"`
	At    time.Time    `json:"at"`
	Event domain.Event `json:"event"`
}

// ErrorHandler receives write failures. Emission itself never fails.
type ErrorHandler func(err error)

// JSONLSink appends events to hourly zstd-compressed JSONL files under dir.
type JSONLSink struct {
	dir    string
	prefix string
	now    func() time.Time
	onErr  ErrorHandler

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

// NewJSONLSink builds a sink writing files named <prefix>-<hour>.jsonl.zst.
func NewJSONLSink(dir, prefix string, onErr ErrorHandler) *JSONLSink {
	if prefix == "" {
		prefix = "events"
	}
	return &JSONLSink{
		dir:    dir,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
		onErr:  onErr,
	}
}

// Emit implements domain.EventSink.
func (s *JSONLSink) Emit(_ context.Context, event domain.Event) {
	if err := s.Write(event); err != nil && s.onErr != nil {
		s.onErr(err)
	}
}

// Write appends one record and flushes it to the compressor.
func (s *JSONLSink) Write(event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now()
	hour := at.Format("2006-01-02-15")
	if hour != s.curHour {
		if err := s.rotateLocked(hour); err != nil {
			return err
		}
	}
	b, err := json.Marshal(LogRecord{ID: uuid.NewString(), At: at, Event: event})
	if err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.enc.Flush()
}

// Close flushes and closes the current file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

// PathForHour returns the file that holds records for hour (2006-01-02-15).
func (s *JSONLSink) PathForHour(hour string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.jsonl.zst", s.prefix, hour))
}

func (s *JSONLSink) rotateLocked(hour string) error {
	if err := s.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.PathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	s.f = f
	s.enc = enc
	s.w = bufio.NewWriterSize(enc, 64*1024)
	s.curHour = hour
	return nil
}

func (s *JSONLSink) closeLocked() error {
	var errs []error
	if s.w != nil {
		errs = append(errs, s.w.Flush())
	}
	if s.enc != nil {
		errs = append(errs, s.enc.Close())
		s.enc = nil
	}
	if s.f != nil {
		errs = append(errs, s.f.Close())
		s.f = nil
	}
	s.w = nil
	s.curHour = ""
	return errors.Join(errs...)
}

// ReadLog decodes every record of a compressed JSONL event file.
func ReadLog(path string) ([]LogRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return DecodeLog(f)
}

// DecodeLog decodes zstd-compressed JSONL records from r.
func DecodeLog(r io.Reader) ([]LogRecord, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	var out []LogRecord
	jd := json.NewDecoder(dec)
	for {
		var rec LogRecord
		if err := jd.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, fmt.Errorf("decode event record: %w", err)
		}
		out = append(out, rec)
	}
}
