// Package sql guards the statements and names that reach the warehouse.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyStatement indicates there is nothing to execute.
	ErrEmptyStatement = errors.New("empty SQL statement")
	// ErrMultipleStatements indicates the text contains more than one statement.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
	// ErrNotReadOnly indicates the statement is not a SELECT.
	ErrNotReadOnly = errors.New("only SELECT statements may be executed")
	// ErrUnterminated indicates a quoted literal, identifier or comment is never closed.
	ErrUnterminated = errors.New("unterminated quote or comment in SQL statement")
)

// NormalizeStatement trims the text, strips one trailing semicolon and checks that
// exactly one read-only statement remains. Quotes ('', "" and []) and comments are
// skipped when looking for statement separators.
func NormalizeStatement(text string) (string, error) {
	text = stripTrailingSemicolon(strings.TrimSpace(text))
	if text == "" {
		return "", ErrEmptyStatement
	}

	separator, err := findSeparator(text)
	if err != nil {
		return "", err
	}
	if separator >= 0 {
		return "", ErrMultipleStatements
	}

	if !isReadOnly(text) {
		return "", ErrNotReadOnly
	}
	return text, nil
}

func isReadOnly(text string) bool {
	word := firstWord(text)
	return word == "SELECT" || word == "WITH"
}

func firstWord(text string) string {
	end := strings.IndexFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end < 0 {
		end = len(text)
	}
	return strings.ToUpper(text[:end])
}

// findSeparator returns the byte offset of the first ';' outside quotes and comments, or -1.
func findSeparator(text string) (int, error) {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateBracket
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	for i := 0; i < len(text); i++ {
		c := text[i]
		var next byte
		if i+1 < len(text) {
			next = text[i+1]
		}

		switch state {
		case stateNormal:
			switch {
			case c == ';':
				return i, nil
			case c == '\'':
				state = stateSingleQuote
			case c == '"':
				state = stateDoubleQuote
			case c == '[':
				state = stateBracket
			case c == '-' && next == '-':
				state = stateLineComment
				i++
			case c == '/' && next == '*':
				state = stateBlockComment
				i++
			}
		case stateSingleQuote:
			// A doubled quote is an escaped quote and stays inside the literal.
			if c == '\'' {
				if next == '\'' {
					i++
				} else {
					state = stateNormal
				}
			}
		case stateDoubleQuote:
			if c == '"' {
				if next == '"' {
					i++
				} else {
					state = stateNormal
				}
			}
		case stateBracket:
			if c == ']' {
				if next == ']' {
					i++
				} else {
					state = stateNormal
				}
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}

	if state != stateNormal && state != stateLineComment {
		return -1, ErrUnterminated
	}
	return -1, nil
}

func stripTrailingSemicolon(text string) string {
	text = strings.TrimRight(text, " \t\n\r")
	if strings.HasSuffix(text, ";") {
		text = strings.TrimRight(strings.TrimSuffix(text, ";"), " \t\n\r")
	}
	return text
}
