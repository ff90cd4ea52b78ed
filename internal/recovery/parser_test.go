package recovery

import (
	"reflect"
	"strings"
	"testing"
)

func TestParse_StrictTier(t *testing.T) {
	got := Parse(`{"score": 9, "analysis": "Great item", "keywords": ["a","b"]}`)

	if got.Score != 9 {
		t.Fatalf("expected score 9, got %v", got.Score)
	}
	if got.Analysis != "Great item" {
		t.Fatalf("expected analysis %q, got %q", "Great item", got.Analysis)
	}
	if !reflect.DeepEqual(got.Keywords, []string{"a", "b"}) {
		t.Fatalf("expected keywords [a b], got %v", got.Keywords)
	}
}

func TestParse_FencedBlock(t *testing.T) {
	raw := "```json\n{\"score\": 6.5, \"analysis\": \"Yaxshi e'lon\", \"keywords\": [\"telefon\", \"yangi\"]}\n```"
	got := Parse(raw)

	if got.Score != 6.5 {
		t.Fatalf("expected score 6.5, got %v", got.Score)
	}
	if got.Analysis != "Yaxshi e'lon" {
		t.Fatalf("unexpected analysis: %q", got.Analysis)
	}
}

func TestParse_ProseWrappedJSON(t *testing.T) {
	raw := "Mana tahlil natijasi:\n{\"score\": 4, \"analysis\": \"Qisqa tavsif\", \"keywords\": [\"kam\"]}\nYana savollar bormi?"
	got := Parse(raw)

	if got.Score != 4 {
		t.Fatalf("expected score 4, got %v", got.Score)
	}
	if got.Analysis != "Qisqa tavsif" {
		t.Fatalf("unexpected analysis: %q", got.Analysis)
	}
}

func TestParse_TruncatedUnterminatedString(t *testing.T) {
	// Truncated mid-string, no closing brace at all
	raw := "```json\n{\"score\": 8, \"analysis\": \"Solid liste"
	got := Parse(raw)

	if got.Score != 8 {
		t.Fatalf("expected score 8 recovered from truncated output, got %v", got.Score)
	}
	if got.Analysis == "" {
		t.Fatalf("analysis must never be empty")
	}
	if len(got.Keywords) == 0 || len(got.Keywords) > 8 {
		t.Fatalf("keywords out of bounds: %v", got.Keywords)
	}
}

func TestParse_UnterminatedKeywordsArrayRepair(t *testing.T) {
	// Balanced braces but the keywords array lost its bracket; the repair
	// tier closes it and re-parses.
	raw := `{"score": 7.5, "analysis": "Zo'r mahsulot", "keywords": ["a", "b"}`
	got := Parse(raw)

	if got.Score < 0 || got.Score > 10 {
		t.Fatalf("score out of bounds: %v", got.Score)
	}
	if got.Analysis == "" {
		t.Fatalf("analysis must never be empty")
	}
}

func TestParse_TotalGarbage(t *testing.T) {
	for _, raw := range []string{
		"",
		"kechirasiz, javob bera olmayman",
		"```json\n```",
		"{{{{",
	} {
		got := Parse(raw)
		if got.Score < 0 || got.Score > 10 {
			t.Fatalf("input %q: score out of bounds: %v", raw, got.Score)
		}
		if got.Score != neutralScore {
			t.Fatalf("input %q: expected neutral score, got %v", raw, got.Score)
		}
		if got.Analysis == "" {
			t.Fatalf("input %q: analysis must never be empty", raw)
		}
		if len(got.Keywords) == 0 || len(got.Keywords) > 8 {
			t.Fatalf("input %q: keywords out of bounds: %v", raw, got.Keywords)
		}
	}
}

func TestParse_BoundsClamped(t *testing.T) {
	got := Parse(`{"score": 42, "analysis": "juda zo'r", "keywords": ["a","b","c","d","e","f","g","h","i","j"]}`)
	if got.Score != 10 {
		t.Fatalf("expected score clamped to 10, got %v", got.Score)
	}
	if len(got.Keywords) != 8 {
		t.Fatalf("expected keywords truncated to 8, got %d", len(got.Keywords))
	}
}

func TestParse_Deterministic(t *testing.T) {
	inputs := []string{
		"",
		"plain prose answer",
		"```json\n{\"score\": 8, \"analysis\": \"Solid liste",
		`{"score": 3, "analysis": "ok", "keywords": []}`,
	}
	for _, raw := range inputs {
		a := Parse(raw)
		b := Parse(raw)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("input %q: Parse not deterministic: %+v vs %+v", raw, a, b)
		}
	}
}

func TestParse_RegexFallbackExtractsFields(t *testing.T) {
	// Not valid JSON (trailing garbage breaks the span) but every field is
	// present for regex extraction.
	raw := `natija: "score": 5.5 bilan, "analysis": "O'rtacha e'lon" deb baholadim, "keywords": ["narx", "sifat"] tavsiya qilaman`
	got := Parse(raw)

	if got.Score != 5.5 {
		t.Fatalf("expected extracted score 5.5, got %v", got.Score)
	}
	if got.Analysis != "O'rtacha e'lon" {
		t.Fatalf("unexpected analysis: %q", got.Analysis)
	}
	if !reflect.DeepEqual(got.Keywords, []string{"narx", "sifat"}) {
		t.Fatalf("unexpected keywords: %v", got.Keywords)
	}
}

func TestFallbackAnalysis_Truncates(t *testing.T) {
	long := strings.Repeat("a", 500)
	got := Parse(long)
	if len([]rune(got.Analysis)) > 200 {
		t.Fatalf("fallback analysis must be truncated to 200 chars, got %d", len([]rune(got.Analysis)))
	}
}
