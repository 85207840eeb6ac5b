package config

import (
	"fmt"
	"strings"
	"unicode"
)

// argvSplitter tokenizes a command line with POSIX shell quoting: single
// quotes are literal, double quotes honor backslash before " \ and $, and an
// empty quoted word is kept as an empty argument.
type argvSplitter struct {
	argv    []string
	word    strings.Builder
	inWord  bool
	quote   rune
	escaped bool
}

func (s *argvSplitter) emit() {
	if !s.inWord {
		return
	}
	s.argv = append(s.argv, s.word.String())
	s.word.Reset()
	s.inWord = false
}

func (s *argvSplitter) write(r rune) {
	s.word.WriteRune(r)
	s.inWord = true
}

func (s *argvSplitter) feed(r rune) {
	switch {
	case s.escaped:
		if s.quote == '"' && !strings.ContainsRune(`"\$`, r) {
			s.write('\\')
		}
		s.write(r)
		s.escaped = false
	case s.quote == '\'':
		if r == '\'' {
			s.quote = 0
			return
		}
		s.write(r)
	case r == '\\':
		s.escaped = true
		s.inWord = true
	case s.quote == '"':
		if r == '"' {
			s.quote = 0
			return
		}
		s.write(r)
	case r == '\'' || r == '"':
		s.quote = r
		s.inWord = true
	case unicode.IsSpace(r):
		s.emit()
	default:
		s.write(r)
	}
}

// parseArgv splits a configured command into argv. Blank input and input
// starting with # yield nil.
func parseArgv(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.HasPrefix(input, "#") {
		return nil, nil
	}

	var s argvSplitter
	for _, r := range input {
		s.feed(r)
	}
	if s.escaped {
		return nil, fmt.Errorf("unterminated escape sequence in command: %q", input)
	}
	if s.quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote in command: %q", s.quote, input)
	}
	s.emit()
	return s.argv, nil
}

func mustParseArgv(input string) []string {
	argv, err := parseArgv(input)
	if err != nil {
		panic(err)
	}
	return argv
}
