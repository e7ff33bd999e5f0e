package display

import (
	"encoding/base64"
	"fmt"
	"io"
)

// Kitty graphics protocol: base64 payload carried in APC escape
// sequences, chunked at 4096 bytes with m=1 continuation flags.
const (
	escapeStart = "\x1b_G"
	escapeEnd   = "\x1b\\"
	chunkSize   = 4096
)

type KittyEncoder struct {
	out io.Writer
}

func NewKittyEncoder(out io.Writer) *KittyEncoder {
	return &KittyEncoder{out: out}
}

func (e *KittyEncoder) Encode(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	if len(encoded) <= chunkSize {
		_, err := fmt.Fprintf(e.out, "%sa=T,f=100,q=2;%s%s", escapeStart, encoded, escapeEnd)
		return err
	}
	return e.writeChunked(encoded)
}

func (e *KittyEncoder) writeChunked(encoded string) error {
	chunks := splitIntoChunks(encoded, chunkSize)
	for i, chunk := range chunks {
		var params string
		switch {
		case i == 0:
			params = "a=T,f=100,q=2,m=1"
		case i == len(chunks)-1:
			params = "m=0"
		default:
			params = "m=1"
		}
		if _, err := fmt.Fprintf(e.out, "%s%s;%s%s", escapeStart, params, chunk, escapeEnd); err != nil {
			return err
		}
	}
	return nil
}

func splitIntoChunks(s string, size int) []string {
	var chunks []string
	for len(s) > 0 {
		if len(s) < size {
			size = len(s)
		}
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	return chunks
}
