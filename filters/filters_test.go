package filters

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"testing"

	"github.com/wudi/pagekit/ir/raw"
)

func zlibBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	w.Close()
	return buf.Bytes()
}

func TestFlateDecode(t *testing.T) {
	out, err := NewFlateDecoder().Decode(context.Background(), zlibBytes(t, []byte("hello world")), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestFlateDecode_TruncatedKeepsPrefix(t *testing.T) {
	payload := bytes.Repeat([]byte("abcdefgh"), 512)
	enc := zlibBytes(t, payload)
	out, err := NewFlateDecoder().Decode(context.Background(), enc[:len(enc)-8], nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(out) == 0 || !bytes.HasPrefix(payload, out) {
		t.Fatalf("expected a prefix of the payload, got %d bytes", len(out))
	}
}

func TestPNGPredictor(t *testing.T) {
	// Two rows of three bytes, "Up" filter on the second row.
	rows := []byte{0, 1, 2, 3, 2, 1, 1, 1}
	params := raw.Dict()
	params.Set("Predictor", raw.NumberInt(12))
	params.Set("Columns", raw.NumberInt(3))
	out, err := NewFlateDecoder().Decode(context.Background(), zlibBytes(t, rows), params)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 2, 3, 2, 3, 4}
	if !bytes.Equal(out, want) {
		t.Fatalf("got %v want %v", out, want)
	}
}

func TestASCIIDecoders(t *testing.T) {
	ctx := context.Background()
	out, err := NewASCIIHexDecoder().Decode(ctx, []byte("48 65 6C6C 6F7>"), nil)
	if err != nil || string(out) != "Hellop" {
		t.Fatalf("hex: %q %v", out, err)
	}
	out, err = NewASCII85Decoder().Decode(ctx, []byte("<~87cURD]i,\"Ebo7~>"), nil)
	if err != nil || string(out) != "Hello World" {
		t.Fatalf("a85: %q %v", out, err)
	}
	out, err = NewASCII85Decoder().Decode(ctx, []byte("z~>"), nil)
	if err != nil || !bytes.Equal(out, []byte{0, 0, 0, 0}) {
		t.Fatalf("a85 z: %v %v", out, err)
	}
}

func TestRunLengthDecode(t *testing.T) {
	in := []byte{2, 'a', 'b', 'c', 254, 'z', 128}
	out, err := NewRunLengthDecoder().Decode(context.Background(), in, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "abczzz" {
		t.Fatalf("got %q", out)
	}
}

func TestPipeline_StopsAtImageCodec(t *testing.T) {
	p := NewDefaultPipeline(Limits{})
	data, applied, err := p.Decode(context.Background(), []byte("3132>"), []string{"AHx", "DCTDecode"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if applied != 1 || string(data) != "12" {
		t.Fatalf("applied=%d data=%q", applied, data)
	}
}

func TestPipeline_Errors(t *testing.T) {
	p := NewDefaultPipeline(Limits{MaxDecompressedSize: 4})
	if _, _, err := p.Decode(context.Background(), []byte("x"), []string{"Bogus"}, nil); !errors.Is(err, ErrUnsupportedFilter) {
		t.Fatalf("expected unsupported filter, got %v", err)
	}
	big := zlibBytes(t, bytes.Repeat([]byte{'a'}, 64))
	if _, _, err := p.Decode(context.Background(), big, []string{"FlateDecode"}, nil); !errors.Is(err, ErrSizeLimit) {
		t.Fatalf("expected size limit, got %v", err)
	}
}
