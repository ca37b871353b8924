package answer

import (
	"math"
	"testing"
)

func TestColor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		transcript string
		want       string
		ok         bool
	}{
		{"rojo", "rojo", true},
		{"  ES AZUL  ", "azul", true},
		{"creo que es verde", "verde", true},
		{"café", "marrón", true},
		{"cafe", "marrón", true},
		{"marron", "marrón", true},
		{"Marrón", "marrón", true},
		{"es rosado", "rosa", true},
		{"blanco y negro", "blanco", true},
		{"negro y blanco", "negro", true},
		{"anaranjado", "naranja", true},
		{"no sé", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := Color(tt.transcript)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Color(%q) = (%q, %v), want (%q, %v)", tt.transcript, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		transcript string
		want       int
		ok         bool
	}{
		{"uno", 1, true},
		{"1", 1, true},
		{"10", 10, true},
		{"son 10 manzanas", 10, true},
		{"diez", 10, true},
		{"TRES", 3, true},
		{"creo que son siete", 7, true},
		{"dos o tres", 2, true},
		{"5 o 6", 5, true},
		{"ninguno", 1, true},
		{"muchos", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := Number(tt.transcript)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Number(%q) = (%d, %v), want (%d, %v)", tt.transcript, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"gato", "gato", 0},
		{"gato", "pato", 1},
		{"perro", "pero", 1},
		{"marrón", "marron", 1},
		{"kitten", "sitting", 3},
		{"Casa", "casa", 0},
		{"  sol ", "SOL", 0},
		{"Gato", "pato", 1},
	}
	for _, tt := range tests {
		if got := Distance(tt.a, tt.b); got != tt.want {
			t.Errorf("Distance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1.0},
		{"abc", "", 0.0},
		{"Gato", "gato", 1.0},
		{"perro", "pero", 0.8},
		{"casa", "mesa", 0.5},
	}
	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestWord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		transcript, target string
		want               bool
	}{
		{"gato", "gato", true},
		{" GATO ", "gato", true},
		{"es un gato", "gato", true},
		{"pero", "perro", true},
		{"mesa", "casa", false},
		{"", "", true},
		{"elefante", "sol", false},
	}
	for _, tt := range tests {
		if got := Word(tt.transcript, tt.target); got != tt.want {
			t.Errorf("Word(%q, %q) = %v, want %v", tt.transcript, tt.target, got, tt.want)
		}
	}
}

func TestColors(t *testing.T) {
	t.Parallel()

	got := Colors()
	want := []string{"rojo", "azul", "verde", "amarillo", "naranja", "morado", "rosa", "marrón", "negro", "blanco"}
	if len(got) != len(want) {
		t.Fatalf("Colors() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Colors()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNumberWord(t *testing.T) {
	t.Parallel()

	if got := NumberWord(3); got != "tres" {
		t.Errorf("NumberWord(3) = %q", got)
	}
	if got := NumberWord(0); got != "" {
		t.Errorf("NumberWord(0) = %q, want empty", got)
	}
	if got := NumberWord(11); got != "" {
		t.Errorf("NumberWord(11) = %q, want empty", got)
	}
}
