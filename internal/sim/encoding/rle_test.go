package encoding

import "testing"

func TestRLE_RoundTrip(t *testing.T) {
	in := make([]uint16, 0, 200)
	in = append(in, 1, 1, 1, 2, 2, 3)
	for i := 0; i < 50; i++ {
		in = append(in, 0)
	}
	in = append(in, 9, 10, 10, 10)

	enc := EncodeRLE(in)
	out, err := DecodeRLE(enc)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestRLE_EmptyAndSparse(t *testing.T) {
	if enc := EncodeRLE(nil); enc != "" {
		t.Fatalf("empty input should encode empty, got %q", enc)
	}
	out, err := DecodeRLE("")
	if err != nil || len(out) != 0 {
		t.Fatalf("empty decode: %v (%d vals)", err, len(out))
	}

	// A sparse occupancy window: one occupied cell in a sea of zeros.
	sparse := make([]uint16, 4096)
	sparse[1000] = 3
	enc := EncodeRLE(sparse)
	if len(enc) > 32 {
		t.Fatalf("sparse window should compress to a handful of bytes, got %d", len(enc))
	}
	back, err := DecodeRLE(enc)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(back) != len(sparse) || back[1000] != 3 || back[0] != 0 {
		t.Fatalf("sparse round trip broken")
	}
}
