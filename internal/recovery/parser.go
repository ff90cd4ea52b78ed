// Package recovery turns unreliable model output into a structurally valid
// analysis result. The upstream model is asked for a bare JSON object but
// routinely wraps it in prose or code fences, truncates the analysis
// string, or leaves the keywords array unterminated. Parse never fails:
// three decreasingly strict tiers are tried in order and the last one
// always produces defaults.
package recovery

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// AnalysisResult is the typed outcome of a listing analysis. Always fully
// populated: score within [0,10], at most 8 keywords, non-nil analysis.
type AnalysisResult struct {
	Score    float64  `json:"score"`
	Analysis string   `json:"analysis"`
	Keywords []string `json:"keywords"`
}

const (
	neutralScore    = 7
	maxKeywords     = 8
	maxFallbackText = 200
)

// fallback values when a field cannot be recovered at all
var (
	defaultAnalysis = "Tahlil mavjud emas"
	defaultKeywords = []string{"mahsulot", "sotuv", "yaxshi"}
)

var (
	fenceOpenRe  = regexp.MustCompile("```[a-zA-Z]*\\s*")
	fenceCloseRe = regexp.MustCompile("```\\s*$")

	// first {...} span, tolerating one level of nested braces
	jsonSpanRe = regexp.MustCompile(`\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)

	unterminatedAnalysisRe = regexp.MustCompile(`"analysis":\s*"[^"]*"`)
	analysisPrefixRe       = regexp.MustCompile(`("analysis":\s*"[^"]*)`)
	unterminatedKeywordsRe = regexp.MustCompile(`"keywords":\s*\[[^\]]*\]`)
	keywordsPrefixRe       = regexp.MustCompile(`("keywords":\s*\[[^\]]*)`)

	scoreFieldRe    = regexp.MustCompile(`"score":\s*([\d.]+)`)
	analysisFieldRe = regexp.MustCompile(`"analysis":\s*"([^"]*)"`)
	keywordsFieldRe = regexp.MustCompile(`"keywords":\s*\[([^\]]*)\]`)

	noiseRe = regexp.MustCompile(`[{}"]`)
)

// Parse recovers an AnalysisResult from raw model output. Pure and
// deterministic; identical input always yields an identical result.
func Parse(raw string) AnalysisResult {
	if r, ok := parseStrict(raw); ok {
		return sanitize(r, raw)
	}
	if r, ok := parseRepaired(raw); ok {
		return sanitize(r, raw)
	}
	return sanitize(parseExtract(raw), raw)
}

// parseStrict strips code fences, locates the first balanced-looking JSON
// span and parses it strictly. If no span exists the whole cleaned text is
// tried as JSON.
func parseStrict(raw string) (AnalysisResult, bool) {
	clean := stripFences(raw)

	if span := jsonSpanRe.FindString(clean); span != "" {
		return decodeObject(span)
	}
	return decodeObject(strings.TrimSpace(clean))
}

// parseRepaired retries the tier-1 span after two targeted repairs:
// an unterminated analysis string gets closed, an unterminated keywords
// array gets its bracket. Only one retry.
func parseRepaired(raw string) (AnalysisResult, bool) {
	clean := stripFences(raw)
	span := jsonSpanRe.FindString(clean)
	if span == "" {
		return AnalysisResult{}, false
	}

	repaired := span
	if strings.Contains(repaired, `"analysis":`) && !unterminatedAnalysisRe.MatchString(repaired) {
		repaired = analysisPrefixRe.ReplaceAllString(repaired, `$1..."`)
	}
	if strings.Contains(repaired, `"keywords":`) && !unterminatedKeywordsRe.MatchString(repaired) {
		repaired = keywordsPrefixRe.ReplaceAllString(repaired, `$1]`)
	}
	if repaired == span {
		return AnalysisResult{}, false
	}
	return decodeObject(repaired)
}

// parseExtract pulls individual fields out of the original raw text with
// regular expressions. Fields that cannot be found get neutral defaults,
// so this tier always succeeds.
func parseExtract(raw string) AnalysisResult {
	r := AnalysisResult{
		Score:    neutralScore,
		Analysis: fallbackAnalysis(raw),
		Keywords: append([]string(nil), defaultKeywords...),
	}

	if m := scoreFieldRe.FindStringSubmatch(raw); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			r.Score = f
		}
	}
	if m := analysisFieldRe.FindStringSubmatch(raw); m != nil && m[1] != "" {
		r.Analysis = m[1]
	}
	if m := keywordsFieldRe.FindStringSubmatch(raw); m != nil {
		var kws []string
		for _, part := range strings.Split(m[1], ",") {
			kw := strings.Trim(strings.TrimSpace(part), `"`)
			if kw != "" {
				kws = append(kws, kw)
			}
		}
		if len(kws) > 0 {
			r.Keywords = kws
		}
	}
	return r
}

// decodeObject parses s as the expected JSON object. Strict: malformed
// JSON or a non-numeric score rejects the candidate so a later tier runs.
func decodeObject(s string) (AnalysisResult, bool) {
	if s == "" || !gjson.Valid(s) {
		return AnalysisResult{}, false
	}
	parsed := gjson.Parse(s)
	if !parsed.IsObject() {
		return AnalysisResult{}, false
	}

	score := parsed.Get("score")
	if !score.Exists() || score.Type != gjson.Number {
		return AnalysisResult{}, false
	}

	r := AnalysisResult{
		Score:    score.Float(),
		Analysis: parsed.Get("analysis").String(),
	}
	for _, kw := range parsed.Get("keywords").Array() {
		if s := kw.String(); s != "" {
			r.Keywords = append(r.Keywords, s)
		}
	}
	return r, true
}

// sanitize enforces the result invariants regardless of which tier
// produced the values.
func sanitize(r AnalysisResult, raw string) AnalysisResult {
	if r.Score < 0 {
		r.Score = 0
	} else if r.Score > 10 {
		r.Score = 10
	}

	if r.Analysis == "" {
		r.Analysis = fallbackAnalysis(raw)
	}

	if len(r.Keywords) == 0 {
		r.Keywords = append([]string(nil), defaultKeywords...)
	} else if len(r.Keywords) > maxKeywords {
		r.Keywords = r.Keywords[:maxKeywords]
	}
	return r
}

// fallbackAnalysis builds a display-safe excerpt of the raw text: fences
// and JSON noise stripped, truncated to 200 runes.
func fallbackAnalysis(raw string) string {
	clean := stripFences(raw)
	clean = noiseRe.ReplaceAllString(clean, "")
	clean = strings.TrimSpace(clean)

	runes := []rune(clean)
	if len(runes) > maxFallbackText {
		clean = string(runes[:maxFallbackText])
	}
	if clean == "" {
		return defaultAnalysis
	}
	return clean
}

// stripFences removes markdown code-fence markers without touching the
// fenced content.
func stripFences(s string) string {
	s = fenceOpenRe.ReplaceAllString(s, "")
	return fenceCloseRe.ReplaceAllString(s, "")
}
