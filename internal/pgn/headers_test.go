package pgn

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleGame = "[Event \"Test\"]\n[White \"A\"]\n[Black \"B\"]\n[Result \"1-0\"]\n\n1. e4 e5 2. Nf3"

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Headers
	}{
		{
			name: "sample game",
			text: sampleGame,
			want: Headers{"Event": "Test", "White": "A", "Black": "B", "Result": "1-0"},
		},
		{
			name: "no tags",
			text: "1. e4 e5",
			want: Headers{},
		},
		{
			name: "last occurrence wins",
			text: "[White \"First\"]\n[White \"Second\"]\n\n1. d4",
			want: Headers{"White": "Second"},
		},
		{
			name: "empty value is absent",
			text: "[Event \"\"]\n[Site \"Oslo\"]\n\n*",
			want: Headers{"Site": "Oslo"},
		},
		{
			name: "tag lookalike in movetext comment is ignored",
			text: "[Event \"Real\"]\n\n1. e4 {[Event \"Fake\"]} e5",
			want: Headers{"Event": "Real"},
		},
		{
			name: "leading blank lines",
			text: "\n\n[Date \"2024.01.01\"]\n\n1. c4",
			want: Headers{"Date": "2024.01.01"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseHeaders(tt.text)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseHeaders() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseHeadersIdempotent(t *testing.T) {
	first := ParseHeaders(sampleGame)
	second := ParseHeaders(sampleGame)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("ParseHeaders() not idempotent (-first +second):\n%s", diff)
	}
}

func TestHeadersPlaceholders(t *testing.T) {
	h := Headers{"White": "Carlsen", "WhiteElo": "2830"}

	cases := map[string][2]string{
		"white":    {h.White(), "Carlsen"},
		"black":    {h.Black(), "?"},
		"result":   {h.Result(), "?"},
		"date":     {h.Date(), "?"},
		"whiteElo": {h.WhiteElo(), "2830"},
		"blackElo": {h.BlackElo(), "N/A"},
		"fen":      {h.FEN(), ""},
	}
	for name, c := range cases {
		if c[0] != c[1] {
			t.Errorf("%s = %q, want %q", name, c[0], c[1])
		}
	}
}
