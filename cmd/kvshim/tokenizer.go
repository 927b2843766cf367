package main

import (
	"fmt"
	"strings"
	"unicode"
)

// tokenize splits a command line into arguments. Double quotes support
// \n, \r, \t and \xHH escapes; single quotes are literal except for \'.
// Quotes make empty arguments possible.
func tokenize(input string) ([]string, error) {
	var tokens []string
	var current strings.Builder
	inToken := false
	var quote rune

	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case quote == '"':
			switch {
			case r == '"':
				quote = 0
			case r == '\\' && i+1 < len(runes):
				i++
				switch e := runes[i]; e {
				case 'n':
					current.WriteByte('\n')
				case 'r':
					current.WriteByte('\r')
				case 't':
					current.WriteByte('\t')
				case 'x':
					if i+2 < len(runes) && isHex(runes[i+1]) && isHex(runes[i+2]) {
						current.WriteByte(unhex(runes[i+1])<<4 | unhex(runes[i+2]))
						i += 2
					} else {
						current.WriteRune(e)
					}
				default:
					current.WriteRune(e)
				}
			default:
				current.WriteRune(r)
			}
		case quote == '\'':
			switch {
			case r == '\'':
				quote = 0
			case r == '\\' && i+1 < len(runes) && runes[i+1] == '\'':
				i++
				current.WriteRune('\'')
			default:
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case unicode.IsSpace(r):
			if inToken {
				tokens = append(tokens, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteRune(r)
			inToken = true
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unbalanced quotes in %q", input)
	}
	if inToken {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func unhex(r rune) byte {
	switch {
	case r >= 'a':
		return byte(r-'a') + 10
	case r >= 'A':
		return byte(r-'A') + 10
	}
	return byte(r - '0')
}
