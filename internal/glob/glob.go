// Package glob implements Redis-style glob matching for channel patterns and
// KEYS/SCAN MATCH filters.
package glob

// Match reports whether str matches the Redis glob pattern. Supported syntax:
// '*', '?', character classes "[abc]", negated classes "[^a]", ranges "[a-z]"
// and backslash escapes.
func Match(pattern, str string) bool {
	px, sx := 0, 0
	starPx, starSx := -1, 0

	for sx < len(str) {
		if px < len(pattern) {
			switch pattern[px] {
			case '*':
				starPx = px
				starSx = sx
				px++
				continue
			case '?':
				px++
				sx++
				continue
			case '[':
				if next, ok := matchClass(pattern, px, str[sx]); next > 0 {
					if ok {
						px = next
						sx++
						continue
					}
				} else if str[sx] == '[' {
					// unterminated class matches a literal bracket
					px++
					sx++
					continue
				}
			case '\\':
				if px+1 < len(pattern) && pattern[px+1] == str[sx] {
					px += 2
					sx++
					continue
				}
			default:
				if pattern[px] == str[sx] {
					px++
					sx++
					continue
				}
			}
		}
		if starPx != -1 {
			px = starPx + 1
			starSx++
			sx = starSx
			continue
		}
		return false
	}

	for px < len(pattern) && pattern[px] == '*' {
		px++
	}
	return px == len(pattern)
}

// matchClass evaluates the class starting at pattern[start] == '[' against c.
// It returns the index just past the closing bracket, or 0 when the class is
// not terminated.
func matchClass(pattern string, start int, c byte) (int, bool) {
	i := start + 1
	negate := false
	if i < len(pattern) && pattern[i] == '^' {
		negate = true
		i++
	}
	matched := false
	for i < len(pattern) && pattern[i] != ']' {
		switch {
		case pattern[i] == '\\' && i+1 < len(pattern):
			if pattern[i+1] == c {
				matched = true
			}
			i += 2
		case i+2 < len(pattern) && pattern[i+1] == '-' && pattern[i+2] != ']':
			lo, hi := pattern[i], pattern[i+2]
			if lo > hi {
				lo, hi = hi, lo
			}
			if c >= lo && c <= hi {
				matched = true
			}
			i += 3
		default:
			if pattern[i] == c {
				matched = true
			}
			i++
		}
	}
	if i >= len(pattern) {
		return 0, false
	}
	if negate {
		matched = !matched
	}
	return i + 1, matched
}

// HasMeta reports whether pattern contains glob metacharacters.
func HasMeta(pattern string) bool {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '*', '?', '[', '\\':
			return true
		}
	}
	return false
}
