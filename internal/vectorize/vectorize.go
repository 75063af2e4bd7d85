// Package vectorize turns raw text into fixed-size quantized records.
//
// The pipeline is tokenize -> hashing vectorizer -> scalar int8 quantization.
// Records are written verbatim into the arena's vector log, so the encoded
// layout is part of the on-arena format:
//
//	[scale float32][bias float32][Dimension x int8]
package vectorize

import (
	"encoding/binary"
	"math"
	"strings"
	"sync/atomic"
	"unicode"
)

const (
	// Dimension is the dense vector width produced by the hashing trick.
	Dimension = 256
	// RecordSize is the encoded size of one quantized record.
	RecordSize = 4 + 4 + Dimension
)

// Tokenizer splits text into terms and interns them in a persistent
// vocabulary. Tokenize has a single owner (the analysis worker);
// VocabularySize may be polled from any goroutine.
type Tokenizer struct {
	vocab map[string]uint32
	size  atomic.Int64
}

// NewTokenizer creates an empty-vocabulary tokenizer.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{vocab: make(map[string]uint32)}
}

// Tokenize lowercases text, splits on non-alphanumeric runes, and returns
// term-id -> occurrence count. New terms extend the vocabulary.
func (t *Tokenizer) Tokenize(text string) map[uint32]uint32 {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(fields) == 0 {
		return nil
	}

	counts := make(map[uint32]uint32, len(fields))
	for _, term := range fields {
		id, ok := t.vocab[term]
		if !ok {
			id = uint32(len(t.vocab))
			t.vocab[term] = id
			t.size.Store(int64(len(t.vocab)))
		}
		counts[id]++
	}
	return counts
}

// VocabularySize returns the number of distinct terms seen so far.
func (t *Tokenizer) VocabularySize() int {
	return int(t.size.Load())
}

// Vectorize folds sparse term counts into a dense term-frequency vector via
// the hashing trick: each term id maps to bucket id % Dimension.
func Vectorize(counts map[uint32]uint32) [Dimension]float32 {
	var vec [Dimension]float32
	for id, count := range counts {
		vec[id%Dimension] += float32(count)
	}
	return vec
}

// Quantized is a scalar-quantized vector: value(i) ~= Scale*(Data[i]+128) + Bias.
type Quantized struct {
	Scale float32
	Bias  float32
	Data  [Dimension]int8
}

// Quantize maps vec onto int8 with per-record scale and bias.
func Quantize(vec [Dimension]float32) Quantized {
	minVal, maxVal := vec[0], vec[0]
	for _, v := range vec {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}

	spread := maxVal - minVal
	q := Quantized{
		Scale: spread / 255,
		Bias:  minVal,
	}
	if math.Abs(float64(spread)) < 1e-6 {
		// Flatline: avoid dividing by zero; every element quantizes to -128.
		q.Scale = 1
		spread = 1
	}

	for i, v := range vec {
		norm := (v - minVal) / spread
		scaled := int(math.Round(float64(norm * 255)))
		scaled -= 128
		if scaled < -128 {
			scaled = -128
		}
		if scaled > 127 {
			scaled = 127
		}
		q.Data[i] = int8(scaled)
	}
	return q
}

// Dequantize recovers an approximation of element i.
func (q Quantized) Dequantize(i int) float32 {
	return q.Scale*float32(int(q.Data[i])+128) + q.Bias
}

// Encode writes the record into dst, which must be at least RecordSize bytes.
func (q Quantized) Encode(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:], math.Float32bits(q.Scale))
	binary.LittleEndian.PutUint32(dst[4:], math.Float32bits(q.Bias))
	for i, v := range q.Data {
		dst[8+i] = byte(v)
	}
}

// Decode reads a record previously written by Encode.
func Decode(src []byte) Quantized {
	var q Quantized
	q.Scale = math.Float32frombits(binary.LittleEndian.Uint32(src[0:]))
	q.Bias = math.Float32frombits(binary.LittleEndian.Uint32(src[4:]))
	for i := range q.Data {
		q.Data[i] = int8(src[8+i])
	}
	return q
}
