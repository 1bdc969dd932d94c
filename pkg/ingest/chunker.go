package ingest

import (
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// SplitChunks partitions text into sentence-aligned fragments whose token
// count stays within maxTokens under the given tiktoken encoding. A single
// sentence longer than the budget becomes its own oversized chunk rather
// than being cut mid-sentence.
func SplitChunks(text, encoder string, maxTokens int) ([]string, error) {
	enc, err := tiktoken.GetEncoding(encoder)
	if err != nil {
		return nil, err
	}

	sentences := splitIntoSentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}

	var chunks []string
	start := 0
	for i := 1; i <= len(sentences); i++ {
		if i < len(sentences) {
			joined := strings.Join(sentences[start:i+1], " ")
			if len(enc.Encode(joined, nil, nil)) <= maxTokens {
				continue
			}
		}
		chunk := strings.TrimSpace(strings.Join(sentences[start:i], " "))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		start = i
	}

	return chunks, nil
}

// splitIntoSentences breaks text on sentence terminators and blank lines.
// Numbered enumerations like "1. " do not end a sentence.
func splitIntoSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		for _, sentence := range splitLineIntoSentences(trimmed) {
			if current.Len() > 0 {
				current.WriteString(" ")
			}
			current.WriteString(sentence)
			if endsSentence(sentence) {
				flush()
			}
		}
	}
	flush()

	return sentences
}

func endsSentence(s string) bool {
	s = strings.TrimRight(s, `"')]}`)
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?")
}

func splitLineIntoSentences(line string) []string {
	var sentences []string
	var current strings.Builder

	for i := 0; i < len(line); i++ {
		current.WriteByte(line[i])

		if line[i] != '.' && line[i] != '!' && line[i] != '?' {
			continue
		}

		// "1. " style numbered listings continue the sentence.
		if i > 0 && unicode.IsDigit(rune(line[i-1])) && i+1 < len(line) && line[i+1] == ' ' {
			continue
		}
		// A terminator not followed by a space sits inside a citation or
		// abbreviation and does not end the sentence.
		if i+1 < len(line) && line[i+1] != ' ' {
			continue
		}

		j := i + 1
		for j < len(line) && strings.ContainsRune(`"')]}`, rune(line[j])) {
			current.WriteByte(line[j])
			j++
		}

		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
		i = j - 1
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
