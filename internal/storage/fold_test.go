package storage

import "testing"

func TestFoldAccents(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Automação", "automacao"},
		{"Notícias", "noticias"},
		{"São Paulo", "sao paulo"},
		{"plain", "plain"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := foldAccents(tc.in); got != tc.want {
			t.Errorf("foldAccents(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMatchesQuery(t *testing.T) {
	cases := []struct {
		name        string
		description string
		query       string
		want        bool
	}{
		{"Automação Residencial", "casa inteligente", "automacao", true},
		{"Automação Residencial", "casa inteligente", "AUTOMAÇÃO", true},
		{"Esportes", "notícias de futebol", "noticias", true},
		{"Esportes", "futebol", "culinária", false},
		{"Esportes", "futebol", "", true},
		{"Esportes", "futebol", "   ", true},
	}
	for _, tc := range cases {
		if got := matchesQuery(tc.name, tc.description, tc.query); got != tc.want {
			t.Errorf("matchesQuery(%q, %q, %q) = %v, want %v", tc.name, tc.description, tc.query, got, tc.want)
		}
	}
}
