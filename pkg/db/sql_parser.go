package db

import (
	"strings"
	"unicode"
)

// sqlScanner walks raw migration SQL and tracks quoting state so that
// semicolons inside strings, comments, and dollar-quoted bodies do not
// terminate a statement.
type sqlScanner struct {
	src string
	pos int

	singleQuoted bool
	doubleQuoted bool
	lineComment  bool
	blockComment bool
	dollarTag    string
}

// splitSQLStatements breaks a migration file into individual statements.
// Comments are stripped, dollar-quoted function bodies stay intact.
func splitSQLStatements(content string) []string {
	var (
		statements []string
		current    strings.Builder
	)

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	s := &sqlScanner{src: content}

	for s.pos < len(s.src) {
		ch := s.src[s.pos]

		switch {
		case s.lineComment:
			if ch == '\n' {
				s.lineComment = false
				current.WriteByte(ch)
			}
			s.pos++
		case s.blockComment:
			if ch == '*' && s.peek() == '/' {
				s.blockComment = false
				s.pos++
			}
			s.pos++
		case s.dollarTag != "":
			if strings.HasPrefix(s.src[s.pos:], s.dollarTag) {
				current.WriteString(s.dollarTag)
				s.pos += len(s.dollarTag)
				s.dollarTag = ""
			} else {
				current.WriteByte(ch)
				s.pos++
			}
		case s.startsComment(ch):
			s.pos += 2
		case s.startsDollarQuote(&current):
			// position advanced inside the check
		case ch == '\'' && !s.doubleQuoted:
			s.singleQuoted = !s.singleQuoted
			current.WriteByte(ch)
			s.pos++
		case ch == '"' && !s.singleQuoted:
			s.doubleQuoted = !s.doubleQuoted
			current.WriteByte(ch)
			s.pos++
		case ch == ';' && !s.singleQuoted && !s.doubleQuoted:
			flush()
			s.pos++
		default:
			current.WriteByte(ch)
			s.pos++
		}
	}

	flush()

	return statements
}

func (s *sqlScanner) peek() byte {
	if s.pos+1 < len(s.src) {
		return s.src[s.pos+1]
	}
	return 0
}

func (s *sqlScanner) startsComment(ch byte) bool {
	if s.singleQuoted || s.doubleQuoted {
		return false
	}

	if ch == '-' && s.peek() == '-' {
		s.lineComment = true
		return true
	}

	if ch == '/' && s.peek() == '*' {
		s.blockComment = true
		return true
	}

	return false
}

func (s *sqlScanner) startsDollarQuote(current *strings.Builder) bool {
	if s.singleQuoted || s.doubleQuoted || s.src[s.pos] != '$' {
		return false
	}

	rest := s.src[s.pos:]

	for i := 1; i < len(rest); i++ {
		if rest[i] == '$' {
			tag := rest[:i+1]
			s.dollarTag = tag
			current.WriteString(tag)
			s.pos += len(tag)

			return true
		}

		if rest[i] != '_' && !unicode.IsLetter(rune(rest[i])) && !unicode.IsDigit(rune(rest[i])) {
			return false
		}
	}

	return false
}

// extractVersion returns the numeric prefix of a migration filename,
// e.g. "0001" for "0001_observability.up.sql".
func extractVersion(filename string) string {
	parts := strings.SplitN(filename, "_", 2)
	return parts[0]
}
