package archive

import (
	"bytes"

	"github.com/klauspost/compress/zstd"
)

// zstdFrameMagic starts every zstd frame.
var zstdFrameMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// codec compresses archived bodies. Decompression always works so that
// objects written with a different setting stay readable.
type codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newCodec(compress bool) (*codec, error) {
	c := &codec{}
	var err error
	if compress {
		c.encoder, err = zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
	}
	c.decoder, err = zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *codec) enabled() bool { return c.encoder != nil }

func (c *codec) compress(data []byte) []byte {
	if c.encoder == nil {
		return data
	}
	return c.encoder.EncodeAll(data, make([]byte, 0, c.encoder.MaxEncodedSize(len(data))))
}

func isCompressed(data []byte) bool {
	return len(data) >= len(zstdFrameMagic) && bytes.Equal(data[:len(zstdFrameMagic)], zstdFrameMagic)
}

// decompress returns data unchanged unless it is a zstd frame.
func (c *codec) decompress(data []byte) ([]byte, error) {
	if !isCompressed(data) {
		return data, nil
	}
	return c.decoder.DecodeAll(data, nil)
}

func (c *codec) close() error {
	var err error
	if c.encoder != nil {
		err = c.encoder.Close()
	}
	c.decoder.Close()
	return err
}
