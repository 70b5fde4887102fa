package routing

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Azure/ai-gateway/pkg/domain/gateway"
)

const previewLength = 500

type typePatterns struct {
	name     string
	patterns []*regexp.Regexp
}

// Checked in order; the first group with a match names the prompt type.
var promptTypePatterns = []typePatterns{
	{"code_generation", compileAll(`code`, `програм`, `алгоритм`, `функци`, `класс`, `импорт`, `синтаксис`, `компиляц`, `отладк`)},
	{"translation", compileAll(`перевод`, `translate`, `language`, `язык`, `на английск`, `на русск`)},
	{"summarization", compileAll(`сумм`, `summary`, `кратко`, `основн`, `в двух словах`, `резюме`)},
	{"analysis", compileAll(`анализ`, `analysis`, `сравн`, `compare`, `исследован`, `изуч`)},
	{"creative_writing", compileAll(`творч`, `creative`, `стих`, `story`, `рассказ`, `поэ`, `проза`)},
	{"qa", compileAll(`вопрос`, `question`, `ответ`, `answer`, `почему`, `как`, `что`)},
}

var instructionPatterns = compileAll(
	`используй.*формат`,
	`отвечай.*язык`,
	`не упоминай`,
	`включи.*пример`,
	`структур.*ответ`,
	`сначала.*потом`,
	`ограничь.*словами`,
	`формат.*json`,
	`формат.*xml`,
	`формат.*markdown`,
	`следующий.*шаг`,
	`обязательно.*включи`,
	`исключи.*информацию`,
)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// Analyzer inspects prompts. It is stateless and safe for concurrent use.
type Analyzer struct{}

func NewAnalyzer() *Analyzer { return &Analyzer{} }

func (a *Analyzer) Analyze(messages []gateway.Message) Analysis {
	contents := make([]string, len(messages))
	for i, m := range messages {
		contents[i] = m.Content
	}
	full := strings.Join(contents, "\n")
	tokens := EstimateTokens(full)

	return Analysis{
		TokenEstimate:           tokens,
		Complexity:              ComplexityFor(tokens),
		PromptType:              promptType(full),
		HasSpecificInstructions: hasSpecificInstructions(full),
		TextLength:              utf8.RuneCountInString(full),
		MessageCount:            len(messages),
		Preview:                 Truncate(full, previewLength),
	}
}

// DefaultAnalysis is used when a prompt cannot be analyzed.
func DefaultAnalysis() Analysis {
	return Analysis{
		TokenEstimate: 100,
		Complexity:    ComplexitySimple,
		PromptType:    "general",
	}
}

// EstimateTokens guesses a token count from the average word length: short
// words pack about four characters per token, long words about two.
func EstimateTokens(text string) int {
	words := strings.Fields(text)
	total := 0
	for _, w := range words {
		total += utf8.RuneCountInString(w)
	}
	n := len(words)
	if n == 0 {
		n = 1
	}
	avg := float64(total) / float64(n)

	length := utf8.RuneCountInString(text)
	var estimate int
	switch {
	case avg <= 4:
		estimate = length / 4
	case avg <= 6:
		estimate = length / 3
	default:
		estimate = length / 2
	}
	if estimate < 1 {
		return 1
	}
	return estimate
}

func ComplexityFor(tokens int) Complexity {
	switch {
	case tokens < 100:
		return ComplexitySimple
	case tokens < 500:
		return ComplexityStandard
	case tokens < 1500:
		return ComplexityComplex
	default:
		return ComplexityAdvanced
	}
}

func promptType(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, group := range promptTypePatterns {
		for _, re := range group.patterns {
			if re.MatchString(lower) {
				return group.name
			}
		}
	}
	return "general"
}

func hasSpecificInstructions(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, re := range instructionPatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// Truncate cuts s to max runes and appends "..." when it was longer.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "..."
}
