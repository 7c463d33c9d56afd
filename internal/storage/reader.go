package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/coffersTech/redlogic/internal/redcap"
)

var ErrInvalidHeader = errors.New("invalid .rld file header")

const footerSize = 8

// Pair is one dictionary row.
type Pair struct {
	Instrument string `json:"instrument"`
	Field      string `json:"field"`
}

// PairIterator provides a row-by-row view of a snapshot.
type PairIterator interface {
	Next() bool
	Pair() Pair
	Error() error
	Close() error
}

type DictionaryReader struct {
	decoder *zstd.Decoder
}

func NewDictionaryReader() (*DictionaryReader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &DictionaryReader{decoder: dec}, nil
}

// Close releases the decoder.
func (dr *DictionaryReader) Close() {
	dr.decoder.Close()
}

// NewIterator opens a .rld file. A non-empty instrument restricts the
// rows to that instrument.
func (dr *DictionaryReader) NewIterator(filename, instrument string) (PairIterator, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	it := &FileIterator{reader: dr, file: f, instrument: instrument}
	if err := it.init(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return it, nil
}

type FileIterator struct {
	reader     *DictionaryReader
	file       *os.File
	instrument string

	instruments []string
	fields      []string

	rowCount        int
	instrumentCount int
	cursor          int
	curr            Pair
	err             error
}

func (it *FileIterator) init() error {
	header := make([]byte, len(MagicHeader))
	if _, err := io.ReadFull(it.file, header); err != nil {
		return ErrInvalidHeader
	}
	if !bytes.Equal(header, MagicHeader) {
		return ErrInvalidHeader
	}

	info, err := it.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < int64(len(MagicHeader)+footerSize) {
		return errors.New("file too small")
	}

	footer := make([]byte, footerSize)
	if _, err := it.file.ReadAt(footer, info.Size()-footerSize); err != nil {
		return err
	}
	it.rowCount = int(binary.LittleEndian.Uint32(footer[0:4]))
	it.instrumentCount = int(binary.LittleEndian.Uint32(footer[4:8]))
	it.cursor = -1

	if it.rowCount == 0 {
		return nil
	}

	body := io.NewSectionReader(it.file, int64(len(MagicHeader)), info.Size()-int64(len(MagicHeader))-footerSize)
	instData, err := it.reader.readAndDecompress(body)
	if err != nil {
		return err
	}
	if it.instruments, err = bytesToStringSlice(instData); err != nil {
		return err
	}

	fieldData, err := it.reader.readAndDecompress(body)
	if err != nil {
		return err
	}
	if it.fields, err = bytesToStringSlice(fieldData); err != nil {
		return err
	}

	if it.rowCount != len(it.instruments) || it.rowCount != len(it.fields) {
		return errors.New("column length mismatch")
	}
	return nil
}

func (it *FileIterator) Next() bool {
	for {
		it.cursor++
		if it.cursor >= it.rowCount {
			return false
		}
		inst := it.instruments[it.cursor]
		if it.instrument != "" && inst != it.instrument {
			continue
		}
		it.curr = Pair{Instrument: inst, Field: it.fields[it.cursor]}
		return true
	}
}

func (it *FileIterator) Pair() Pair {
	return it.curr
}

func (it *FileIterator) Error() error {
	return it.err
}

func (it *FileIterator) Close() error {
	return it.file.Close()
}

// InstrumentCount returns the instrument count recorded in the footer.
func (it *FileIterator) InstrumentCount() int {
	return it.instrumentCount
}

// ReadSnapshot reads a whole .rld file back into a dictionary.
func (dr *DictionaryReader) ReadSnapshot(filename string) (*redcap.Dictionary, error) {
	it, err := dr.NewIterator(filename, "")
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var instruments, fields []string
	for it.Next() {
		p := it.Pair()
		instruments = append(instruments, p.Instrument)
		fields = append(fields, p.Field)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}

	dict, err := redcap.FromPairs(instruments, fields)
	if err != nil {
		return nil, err
	}
	if fi, ok := it.(*FileIterator); ok && fi.instrumentCount != len(dict.Instruments()) {
		return nil, fmt.Errorf("%s: footer lists %d instruments, found %d", filename, fi.instrumentCount, len(dict.Instruments()))
	}
	return dict, nil
}

// readAndDecompress reads a compressed block (size + data) and decompresses it.
// The block must fit in what is left of r.
func (dr *DictionaryReader) readAndDecompress(r *io.SectionReader) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	if int64(size) > r.Size()-pos {
		return nil, fmt.Errorf("block of %d bytes exceeds the %d bytes left in the file", size, r.Size()-pos)
	}

	compressed := make([]byte, size)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, err
	}
	return dr.decoder.DecodeAll(compressed, nil)
}

// bytesToStringSlice decodes [Len uint32][Bytes]... entries.
func bytesToStringSlice(data []byte) ([]string, error) {
	var result []string
	buf := bytes.NewReader(data)

	for buf.Len() > 0 {
		var length uint32
		if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
			return nil, err
		}
		if int(length) > buf.Len() {
			return nil, errors.New("truncated string column")
		}
		strBytes := make([]byte, length)
		if _, err := io.ReadFull(buf, strBytes); err != nil {
			return nil, err
		}
		result = append(result, string(strBytes))
	}
	return result, nil
}
