package dataflash

import (
	"fmt"
	"strings"
)

// Frame layout shared by every DataFlash message.
const (
	head1     = 0xA3
	head2     = 0x95
	headerLen = 3

	fmtMsgID      = 0x80
	fmtPayloadLen = 86 // Type, Length, Name[4], Format[16], Columns[64]

	fmtNameLen    = 4
	fmtFormatLen  = 16
	fmtColumnsLen = 64
)

// fieldSize maps a format character to its wire size in bytes.
var fieldSize = map[byte]int{
	'b': 1, 'B': 1, 'M': 1,
	'h': 2, 'H': 2, 'c': 2, 'C': 2,
	'i': 4, 'I': 4, 'e': 4, 'E': 4, 'L': 4, 'f': 4, 'n': 4,
	'q': 8, 'Q': 8, 'd': 8,
	'N': 16,
	'Z': 64, 'a': 64,
}

// format is one message layout learned from an FMT record. Length covers
// the whole message including the three header bytes.
type format struct {
	id      byte
	length  int
	name    string
	types   string
	columns []string
}

// fmtFormat seeds the table with FMT's own layout, the one message a log
// cannot describe for itself.
func fmtFormat() *format {
	return &format{
		id:      fmtMsgID,
		length:  headerLen + fmtPayloadLen,
		name:    "FMT",
		types:   "BBnNZ",
		columns: []string{"Type", "Length", "Name", "Format", "Columns"},
	}
}

// newFormat validates an FMT definition before it joins the table.
func newFormat(id byte, length int, name, types, columns string) (*format, error) {
	if name == "" {
		return nil, fmt.Errorf("message %#02x has no name", id)
	}
	if length < headerLen {
		return nil, fmt.Errorf("message %s declares length %d, below the %d byte header", name, length, headerLen)
	}

	var cols []string
	if columns != "" {
		cols = strings.Split(columns, ",")
	}
	if len(cols) != len(types) {
		return nil, fmt.Errorf("message %s defines %d columns for %d format fields", name, len(cols), len(types))
	}

	need := 0
	for i := 0; i < len(types); i++ {
		size, ok := fieldSize[types[i]]
		if !ok {
			return nil, fmt.Errorf("message %s uses unknown field type %q", name, types[i])
		}
		need += size
	}
	if need > length-headerLen {
		return nil, fmt.Errorf("message %s fields need %d bytes but the message carries %d", name, need, length-headerLen)
	}

	return &format{id: id, length: length, name: name, types: types, columns: cols}, nil
}
