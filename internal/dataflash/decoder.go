// Package dataflash decodes ArduPilot DataFlash binary logs. The format is
// self-describing: FMT messages declare the layout of every other message
// type, so the decoder learns the format table as it reads and can handle
// vendor extensions it has never seen. Corrupt spans are skipped with a
// resync to the next frame head and surfaced as BAD_DATA records for the
// caller to count or ignore.
package dataflash

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/surya-garg/UAVLogViewer/internal/flight"
)

// ErrTooManyBadRecords means the stream produced so many consecutive
// unparseable spans that it has stopped looking like a DataFlash log.
var ErrTooManyBadRecords = errors.New("dataflash: too many consecutive unparseable spans")

// maxBadRuns is how many corrupt spans may arrive back to back before the
// decoder gives up on the stream.
const maxBadRuns = 32

const readBufferSize = 1 << 16

// Decoder reads a DataFlash stream and yields one flight.Record per
// message. It implements flight.Source.
type Decoder struct {
	r       *bufio.Reader
	closer  io.Closer
	formats map[byte]*format
	cur     flight.Record
	err     error
	done    bool
	badRun  int
}

// Open reads the log file at path. The returned decoder owns the file
// handle and releases it on Close.
func Open(path string) (*Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}
	d := NewDecoder(f)
	d.closer = f
	return d, nil
}

// NewDecoder reads a DataFlash stream from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:       bufio.NewReaderSize(r, readBufferSize),
		formats: map[byte]*format{fmtMsgID: fmtFormat()},
	}
}

// Next advances to the next record, returning false at the end of the
// stream or on a structural failure, which Err then reports. A log
// truncated mid-message ends cleanly: flight recorders lose power without
// warning and the tail is not worth failing the whole log for.
func (d *Decoder) Next() bool {
	if d.done {
		return false
	}
	rec, err := d.read()
	if err != nil {
		d.done = true
		if !isEOF(err) {
			d.err = err
		}
		return false
	}
	d.cur = rec
	return true
}

// Record returns the record produced by the last successful Next.
func (d *Decoder) Record() flight.Record { return d.cur }

// Err reports the structural failure that stopped iteration, if any.
func (d *Decoder) Err() error { return d.err }

// Close releases the underlying file when the decoder owns one.
func (d *Decoder) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

func (d *Decoder) read() (flight.Record, error) {
	hdr, err := d.r.Peek(headerLen)
	if err != nil {
		if isEOF(err) {
			return flight.Record{}, io.EOF
		}
		return flight.Record{}, fmt.Errorf("reading message header: %w", err)
	}

	if hdr[0] != head1 || hdr[1] != head2 {
		return d.badSpan(d.resync())
	}

	f, ok := d.formats[hdr[2]]
	if !ok {
		// framed but never defined by an FMT record: corruption that
		// happens to contain the head marker
		if _, err := d.r.Discard(headerLen); err != nil {
			return flight.Record{}, io.EOF
		}
		return d.badSpan(headerLen + d.resync())
	}

	msg := make([]byte, f.length)
	if _, err := io.ReadFull(d.r, msg); err != nil {
		if isEOF(err) {
			return flight.Record{}, io.EOF
		}
		return flight.Record{}, fmt.Errorf("reading %s message: %w", f.name, err)
	}

	d.badRun = 0
	rec := f.decode(msg[headerLen:])
	if f.id == fmtMsgID {
		if err := d.learnFormat(rec); err != nil {
			return flight.Record{}, err
		}
	}
	return rec, nil
}

// badSpan reports a skipped gap as one malformed record.
func (d *Decoder) badSpan(n int) (flight.Record, error) {
	d.badRun++
	if d.badRun > maxBadRuns {
		return flight.Record{}, ErrTooManyBadRecords
	}
	return flight.Record{
		Type:   flight.BadRecordType,
		Fields: map[string]flight.Value{"Bytes": flight.Num(float64(n))},
	}, nil
}

// resync drops bytes until the next frame head, returning how many went.
// The byte that failed the header check is always consumed so a corrupt
// head cannot loop forever.
func (d *Decoder) resync() int {
	n := 0
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return n
		}
		n++
		if b != head1 {
			continue
		}
		nxt, err := d.r.Peek(1)
		if err == nil && nxt[0] == head2 {
			d.r.UnreadByte()
			return n - 1
		}
	}
}

// learnFormat adds the layout described by an FMT record to the table.
// Redefinitions overwrite: some firmwares emit the FMT block more than
// once per boot.
func (d *Decoder) learnFormat(rec flight.Record) error {
	f, err := newFormat(
		byte(rec.FloatOr("Type", 0)),
		int(rec.FloatOr("Length", 0)),
		textField(rec, "Name"),
		textField(rec, "Format"),
		textField(rec, "Columns"),
	)
	if err != nil {
		return fmt.Errorf("dataflash: invalid FMT record: %w", err)
	}
	d.formats[f.id] = f
	return nil
}

func textField(rec flight.Record, name string) string {
	if v, ok := rec.Fields[name]; ok {
		if s, ok := v.Str(); ok {
			return s
		}
	}
	return ""
}

// decode reads the payload fields in format order. Sizes were validated
// when the format was learned, so the walk cannot overrun.
func (f *format) decode(payload []byte) flight.Record {
	fields := make(map[string]flight.Value, len(f.columns))
	off := 0
	for i := 0; i < len(f.types); i++ {
		ch := f.types[i]
		raw := payload[off : off+fieldSize[ch]]
		off += fieldSize[ch]

		name := f.columns[i]
		switch ch {
		case 'b':
			fields[name] = flight.Num(float64(int8(raw[0])))
		case 'B':
			fields[name] = flight.Num(float64(raw[0]))
		case 'M':
			fields[name] = flight.Text(modeName(raw[0]))
		case 'h':
			fields[name] = flight.Num(float64(int16(binary.LittleEndian.Uint16(raw))))
		case 'H':
			fields[name] = flight.Num(float64(binary.LittleEndian.Uint16(raw)))
		case 'c':
			fields[name] = flight.Num(float64(int16(binary.LittleEndian.Uint16(raw))) / 100)
		case 'C':
			fields[name] = flight.Num(float64(binary.LittleEndian.Uint16(raw)) / 100)
		case 'i':
			fields[name] = flight.Num(float64(int32(binary.LittleEndian.Uint32(raw))))
		case 'I':
			fields[name] = flight.Num(float64(binary.LittleEndian.Uint32(raw)))
		case 'e':
			fields[name] = flight.Num(float64(int32(binary.LittleEndian.Uint32(raw))) / 100)
		case 'E':
			fields[name] = flight.Num(float64(binary.LittleEndian.Uint32(raw)) / 100)
		case 'L':
			fields[name] = flight.Num(float64(int32(binary.LittleEndian.Uint32(raw))) * 1e-7)
		case 'f':
			fields[name] = flight.Num(float64(math.Float32frombits(binary.LittleEndian.Uint32(raw))))
		case 'q':
			fields[name] = flight.Num(float64(int64(binary.LittleEndian.Uint64(raw))))
		case 'Q':
			fields[name] = flight.Num(float64(binary.LittleEndian.Uint64(raw)))
		case 'd':
			fields[name] = flight.Num(math.Float64frombits(binary.LittleEndian.Uint64(raw)))
		case 'n', 'N', 'Z':
			fields[name] = flight.Text(cstring(raw))
		case 'a':
			// int16[32] sample block, no scalar mapping
		}
	}
	return flight.Record{Type: f.name, Fields: fields}
}

// cstring trims a fixed-width text field at its first NUL.
func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
