package storage

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/coffersTech/redlogic/internal/redcap"
)

// MagicHeader opens every dictionary snapshot.
var MagicHeader = []byte("REDLOGD1")

type DictionaryWriter struct {
	encoder *zstd.Encoder
}

func NewDictionaryWriter() (*DictionaryWriter, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, err
	}
	return &DictionaryWriter{encoder: enc}, nil
}

// Close releases the encoder.
func (dw *DictionaryWriter) Close() error {
	return dw.encoder.Close()
}

// WriteSnapshot writes dict to a .rld file.
func (dw *DictionaryWriter) WriteSnapshot(filename string, dict *redcap.Dictionary) error {
	var instruments, fields []string
	dict.Pairs(func(instrument, field string) {
		instruments = append(instruments, instrument)
		fields = append(fields, field)
	})

	// Readers never see a partial snapshot.
	tmp := filename + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if err := dw.write(f, instruments, fields, uint32(len(dict.Instruments()))); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, filename)
}

func (dw *DictionaryWriter) write(f *os.File, instruments, fields []string, instrumentCount uint32) error {
	if _, err := f.Write(MagicHeader); err != nil {
		return err
	}

	rowCount := uint32(len(fields))
	if rowCount == 0 {
		return dw.writeFooter(f, 0, 0)
	}

	if err := dw.writeStringCol(f, instruments); err != nil {
		return err
	}
	if err := dw.writeStringCol(f, fields); err != nil {
		return err
	}
	return dw.writeFooter(f, rowCount, instrumentCount)
}

func (dw *DictionaryWriter) writeStringCol(f *os.File, data []string) error {
	buf := new(bytes.Buffer)
	// [Len uint32][Bytes]...
	for _, s := range data {
		binary.Write(buf, binary.LittleEndian, uint32(len(s)))
		buf.WriteString(s)
	}
	return dw.compressAndWrite(f, buf.Bytes())
}

func (dw *DictionaryWriter) compressAndWrite(f *os.File, raw []byte) error {
	compressed := dw.encoder.EncodeAll(raw, make([]byte, 0, len(raw)))

	if err := binary.Write(f, binary.LittleEndian, uint32(len(compressed))); err != nil {
		return err
	}
	_, err := f.Write(compressed)
	return err
}

func (dw *DictionaryWriter) writeFooter(f *os.File, rowCount, instrumentCount uint32) error {
	// RowCount (4) + InstrumentCount (4)
	if err := binary.Write(f, binary.LittleEndian, rowCount); err != nil {
		return err
	}
	return binary.Write(f, binary.LittleEndian, instrumentCount)
}
