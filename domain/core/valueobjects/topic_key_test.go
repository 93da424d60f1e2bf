package valueobjects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "topicgraph/pkg/errors"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want TopicKey
	}{
		{name: "lower-cases", raw: "AI", want: "ai"},
		{name: "trims and collapses whitespace", raw: "  Machine \t  Learning\n", want: "machine learning"},
		{name: "strips punctuation", raw: "C++ & Rust!", want: "c rust"},
		{name: "hyphen joins words", raw: "real-time", want: "realtime"},
		{name: "punctuation between spaces does not leave double space", raw: "war - peace", want: "war peace"},
		{name: "removes stop words", raw: "The Future of Work", want: "future work"},
		{name: "keeps digits", raw: "Web 3.0", want: "web 30"},
		{name: "keeps all stop words when nothing else remains", raw: "The And", want: "the and"},
		{name: "single stop word survives", raw: "The", want: "the"},
		{name: "non-latin letters survive", raw: "Café Société", want: "café société"},
		{name: "empty", raw: "   ", want: ""},
		{name: "only punctuation", raw: "?!#", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"The Future of Work",
		"  the   and ",
		"War -- and -- Peace",
		"İstanbul Tech",
		"a b",
		"Quantum Computing!!",
		"of the",
		"",
		"Ünïcödé   tëxt",
		"GPT-4o & friends",
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(string(once)), "input %q", in)
	}
}

func TestNewTopicKey(t *testing.T) {
	key, err := NewTopicKey("Climate Change")
	require.NoError(t, err)
	assert.Equal(t, TopicKey("climate change"), key)

	_, err = NewTopicKey("!!!")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b TopicKey
		want float64
	}{
		{name: "identical", a: "machine learning", b: "machine learning", want: 1},
		{name: "half overlap", a: "machine learning", b: "deep learning", want: 1.0 / 3.0},
		{name: "disjoint", a: "quantum computing", b: "qubits", want: 0},
		{name: "duplicate tokens count once", a: "go go", b: "go", want: 1},
		{name: "both empty", a: "", b: "", want: 0},
		{name: "one empty", a: "", b: "ai", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Jaccard(tt.a, tt.b), 1e-9)
			assert.InDelta(t, tt.want, Jaccard(tt.b, tt.a), 1e-9)
		})
	}
}
