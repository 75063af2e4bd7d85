package vectorize

import (
	"math"
	"testing"
)

func TestTokenize(t *testing.T) {
	t.Run("counts terms case insensitively", func(t *testing.T) {
		tok := NewTokenizer()

		counts := tok.Tokenize("The ghost, the GHOST, and the machine!")
		if tok.VocabularySize() != 4 {
			t.Fatalf("vocabulary = %d, want 4 (the, ghost, and, machine)", tok.VocabularySize())
		}

		var total uint32
		for _, c := range counts {
			total += c
		}
		if total != 7 {
			t.Fatalf("total term occurrences = %d, want 7", total)
		}
	})

	t.Run("terms keep their id across documents", func(t *testing.T) {
		tok := NewTokenizer()

		first := tok.Tokenize("ghost")
		second := tok.Tokenize("ghost machine")

		var firstID uint32
		for id := range first {
			firstID = id
		}
		if _, ok := second[firstID]; !ok {
			t.Fatal("interned term got a different id in the second document")
		}
		if tok.VocabularySize() != 2 {
			t.Fatalf("vocabulary = %d, want 2", tok.VocabularySize())
		}
	})

	t.Run("empty and symbol-only input yields nothing", func(t *testing.T) {
		tok := NewTokenizer()
		if counts := tok.Tokenize(""); counts != nil {
			t.Fatalf("counts = %v, want nil", counts)
		}
		if counts := tok.Tokenize("!!! --- ..."); counts != nil {
			t.Fatalf("counts = %v, want nil", counts)
		}
	})
}

func TestVectorize(t *testing.T) {
	counts := map[uint32]uint32{
		3:               2,
		3 + Dimension:   1, // hashes into the same bucket as 3
		3 + Dimension*2: 1,
		7:               5,
	}

	vec := Vectorize(counts)
	if vec[3] != 4 {
		t.Errorf("bucket 3 = %v, want 4 (three colliding terms)", vec[3])
	}
	if vec[7] != 5 {
		t.Errorf("bucket 7 = %v, want 5", vec[7])
	}

	var sum float32
	for _, v := range vec {
		sum += v
	}
	if sum != 9 {
		t.Errorf("mass = %v, want 9", sum)
	}
}

func TestQuantize(t *testing.T) {
	t.Run("round trip stays within one quantization step", func(t *testing.T) {
		var vec [Dimension]float32
		for i := range vec {
			vec[i] = float32(i%37) * 0.5
		}

		q := Quantize(vec)
		step := float64(q.Scale)
		for i := range vec {
			got := float64(q.Dequantize(i))
			if diff := math.Abs(got - float64(vec[i])); diff > step {
				t.Fatalf("element %d: dequantized %v, original %v, off by %v (step %v)", i, got, vec[i], diff, step)
			}
		}
	})

	t.Run("extremes map to the int8 range ends", func(t *testing.T) {
		var vec [Dimension]float32
		vec[0] = -10
		vec[1] = 10

		q := Quantize(vec)
		if q.Data[0] != -128 {
			t.Errorf("min element = %d, want -128", q.Data[0])
		}
		if q.Data[1] != 127 {
			t.Errorf("max element = %d, want 127", q.Data[1])
		}
	})

	t.Run("flatline vector does not divide by zero", func(t *testing.T) {
		var vec [Dimension]float32
		for i := range vec {
			vec[i] = 3.5
		}

		q := Quantize(vec)
		for i := range q.Data {
			if q.Data[i] != -128 {
				t.Fatalf("flat element %d = %d, want -128", i, q.Data[i])
			}
		}
		if got := q.Dequantize(0); got != 3.5 {
			t.Fatalf("flat dequantize = %v, want 3.5", got)
		}
	})
}

func TestEncodeDecode(t *testing.T) {
	var vec [Dimension]float32
	for i := range vec {
		vec[i] = float32(i) - 100
	}
	q := Quantize(vec)

	var buf [RecordSize]byte
	q.Encode(buf[:])
	got := Decode(buf[:])

	if got.Scale != q.Scale || got.Bias != q.Bias {
		t.Fatalf("decoded scale/bias = %v/%v, want %v/%v", got.Scale, got.Bias, q.Scale, q.Bias)
	}
	if got.Data != q.Data {
		t.Fatal("decoded data differs")
	}
}
