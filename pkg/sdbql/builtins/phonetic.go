package builtins

import "strings"

// Soundex implements the classic American Soundex algorithm: first
// letter kept, subsequent letters mapped to digit classes, doubles and
// separator h/w collapsed, padded/truncated to 4 characters.
func Soundex(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	code := func(r rune) byte {
		switch r {
		case 'B', 'F', 'P', 'V':
			return '1'
		case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
			return '2'
		case 'D', 'T':
			return '3'
		case 'L':
			return '4'
		case 'M', 'N':
			return '5'
		case 'R':
			return '6'
		default:
			return 0
		}
	}
	runes := []rune(s)
	var out strings.Builder
	out.WriteRune(runes[0])
	last := code(runes[0])
	for _, r := range runes[1:] {
		if r < 'A' || r > 'Z' {
			continue
		}
		c := code(r)
		if c == 0 {
			last = 0
			continue
		}
		if c != last {
			out.WriteByte(c)
		}
		last = c
		if out.Len() >= 4 {
			break
		}
	}
	result := out.String()
	for len(result) < 4 {
		result += "0"
	}
	return result[:4]
}

// Metaphone is a simplified implementation of Lawrence Philips'
// Metaphone algorithm: drops silent letters and common digraphs, then
// maps the remainder to a small consonant-sound alphabet.
func Metaphone(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	runes := []rune(s)
	n := len(runes)
	isVowel := func(i int) bool {
		if i < 0 || i >= n {
			return false
		}
		return strings.ContainsRune("AEIOU", runes[i])
	}

	var out strings.Builder
	i := 0
	if n >= 2 {
		switch {
		case strings.HasPrefix(s, "KN"), strings.HasPrefix(s, "GN"), strings.HasPrefix(s, "PN"), strings.HasPrefix(s, "WR"):
			i = 1
		case strings.HasPrefix(s, "X"):
			out.WriteByte('S')
			i = 1
		case strings.HasPrefix(s, "WH"):
			out.WriteByte('W')
			i = 2
		}
	}
	for ; i < n; i++ {
		r := runes[i]
		if i > 0 && r == runes[i-1] && r != 'C' {
			continue
		}
		switch r {
		case 'A', 'E', 'I', 'O', 'U':
			if i == 0 {
				out.WriteRune(r)
			}
		case 'B':
			if !(i == n-1 && i > 0 && runes[i-1] == 'M') {
				out.WriteByte('B')
			}
		case 'C':
			switch {
			case i+1 < n && runes[i+1] == 'H':
				out.WriteByte('X')
				i++
			case i+1 < n && strings.ContainsRune("IEY", runes[i+1]):
				out.WriteByte('S')
			default:
				out.WriteByte('K')
			}
		case 'D':
			if i+2 < n && runes[i+1] == 'G' && strings.ContainsRune("IEY", runes[i+2]) {
				out.WriteByte('J')
				i += 2
			} else {
				out.WriteByte('T')
			}
		case 'G':
			if i+1 < n && runes[i+1] == 'H' {
				i++
			} else if i+1 < n && strings.ContainsRune("IEY", runes[i+1]) {
				out.WriteByte('J')
			} else {
				out.WriteByte('K')
			}
		case 'H':
			if isVowel(i-1) && !isVowel(i+1) {
				continue
			}
			out.WriteByte('H')
		case 'K':
			if !(i > 0 && runes[i-1] == 'C') {
				out.WriteByte('K')
			}
		case 'P':
			if i+1 < n && runes[i+1] == 'H' {
				out.WriteByte('F')
				i++
			} else {
				out.WriteByte('P')
			}
		case 'Q':
			out.WriteByte('K')
		case 'S':
			if i+1 < n && runes[i+1] == 'H' {
				out.WriteByte('X')
				i++
			} else {
				out.WriteByte('S')
			}
		case 'T':
			if i+1 < n && runes[i+1] == 'H' {
				out.WriteByte('0')
				i++
			} else {
				out.WriteByte('T')
			}
		case 'V':
			out.WriteByte('F')
		case 'W', 'Y':
			if isVowel(i + 1) {
				out.WriteRune(r)
			}
		case 'X':
			out.WriteString("KS")
		case 'Z':
			out.WriteByte('S')
		case 'F', 'J', 'L', 'M', 'N', 'R':
			out.WriteRune(r)
		}
	}
	return out.String()
}

// DoubleMetaphone returns [primary, secondary] codes. This is a
// simplified rendition: primary is Metaphone's output; secondary
// applies the handful of most common alternate-sound substitutions
// (soft/hard C and G) rather than full Double Metaphone rule coverage.
func DoubleMetaphone(s string) [2]string {
	primary := Metaphone(s)
	alt := strings.NewReplacer("K", "S", "J", "K").Replace(primary)
	return [2]string{primary, alt}
}

// cologneCode maps one letter to its Kölner Phonetik digit given
// neighbors, per the standard algorithm's context rules.
func cologneCode(prev, cur, next rune) byte {
	switch cur {
	case 'A', 'E', 'I', 'J', 'O', 'U', 'Y':
		return '0'
	case 'B':
		return '1'
	case 'P':
		if next == 'H' {
			return '3'
		}
		return '1'
	case 'D', 'T':
		if next == 'C' || next == 'S' || next == 'Z' {
			return '8'
		}
		return '2'
	case 'F', 'V', 'W':
		return '3'
	case 'G', 'K', 'Q':
		return '4'
	case 'C':
		if prev == 0 {
			if strings.ContainsRune("AHKLOQRUX", next) {
				return '4'
			}
			return '8'
		}
		if strings.ContainsRune("SZ", prev) {
			return '8'
		}
		if strings.ContainsRune("AHKOQUX", next) {
			return '4'
		}
		return '8'
	case 'X':
		if strings.ContainsRune("CKQ", prev) {
			return '8'
		}
		return '4'
	case 'L':
		return '5'
	case 'M', 'N':
		return '6'
	case 'R':
		return '7'
	case 'S', 'Z':
		return '8'
	}
	return 0
}

// Cologne implements the Kölner Phonetik algorithm for German-language
// phonetic matching.
func Cologne(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	runes := []rune(s)
	var digits []byte
	for i, r := range runes {
		var prev, next rune
		if i > 0 {
			prev = runes[i-1]
		}
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		c := cologneCode(prev, r, next)
		if c == 0 {
			continue
		}
		digits = append(digits, c)
	}
	if len(digits) == 0 {
		return ""
	}
	out := []byte{digits[0]}
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[i-1] {
			out = append(out, digits[i])
		}
	}
	// Zero codes are removed everywhere except in the first position.
	return string(out[:1]) + strings.ReplaceAll(string(out[1:]), "0", "")
}

// Caverphone is a simplified Caverphone 2.0 (New Zealand English surname
// matching): it applies a subset of that algorithm's letter-group
// substitutions, collapses runs of vowels, and pads or truncates the result
// to six characters. Vowels are kept rather than rewritten, so most codes
// differ from those of the full algorithm.
func Caverphone(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	r := strings.NewReplacer(
		"é", "e",
		" ", "",
	)
	s = r.Replace(s)
	repl := []struct{ from, to string }{
		{"2", ""}, {"cough", "cou2f"}, {"rough", "rou2f"}, {"tough", "tou2f"},
		{"enough", "enou2f"}, {"trough", "trou2f"}, {"gn", "2n"}, {"mb$", "m2"},
		{"cq", "2q"}, {"ci", "si"}, {"ce", "se"}, {"cy", "sy"},
		{"tch", "2ch"}, {"c", "k"}, {"q", "k"}, {"x", "k"}, {"v", "f"},
		{"dg", "2g"}, {"tio", "sio"}, {"tia", "sia"}, {"d", "t"}, {"ph", "fh"},
		{"b", "p"}, {"sh", "s2"}, {"z", "s"},
	}
	for _, p := range repl {
		s = strings.ReplaceAll(s, p.from, p.to)
	}
	s = strings.ReplaceAll(s, "2", "")
	var out strings.Builder
	var lastVowel bool
	for i, c := range s {
		isVowel := strings.ContainsRune("aeiou", c)
		if isVowel && i > 0 && lastVowel {
			continue
		}
		out.WriteRune(c)
		lastVowel = isVowel
	}
	result := out.String() + "111111"
	return strings.ToUpper(result[:6])
}

// NYSIIS implements the New York State Identification and Intelligence
// System phonetic algorithm.
func NYSIIS(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	switch {
	case strings.HasPrefix(s, "MAC"):
		s = "MCC" + s[3:]
	case strings.HasPrefix(s, "KN"):
		s = "NN" + s[2:]
	case strings.HasPrefix(s, "K"):
		s = "C" + s[1:]
	case strings.HasPrefix(s, "PH"), strings.HasPrefix(s, "PF"):
		s = "FF" + s[2:]
	case strings.HasPrefix(s, "SCH"):
		s = "SSS" + s[3:]
	}
	runes := []rune(s)
	n := len(runes)
	var out strings.Builder
	out.WriteRune(runes[0])
	last := runes[0]
	for i := 1; i < n; i++ {
		r := runes[i]
		switch {
		case r == 'E' && i+1 < n && runes[i+1] == 'V':
			r = 'A'
			i++
		case strings.ContainsRune("AEIOU", r):
			r = 'A'
		case r == 'Q':
			r = 'G'
		case r == 'Z':
			r = 'S'
		case r == 'M':
			r = 'N'
		case r == 'K':
			if i+1 < n && runes[i+1] == 'N' {
				r = 'N'
			} else {
				r = 'C'
			}
		case r == 'S' && i+1 < n && runes[i+1] == 'C' && i+2 < n && runes[i+2] == 'H':
			out.WriteString("SS")
			i += 2
			last = 'S'
			continue
		case r == 'P' && i+1 < n && runes[i+1] == 'H':
			r = 'F'
			i++
		case r == 'H' && (!strings.ContainsRune("AEIOU", last) || (i+1 < n && !strings.ContainsRune("AEIOU", runes[i+1]))):
			r = last
		case r == 'W' && strings.ContainsRune("AEIOU", last):
			r = last
		}
		if r != last {
			out.WriteRune(r)
		}
		last = r
	}
	result := out.String()
	if strings.HasSuffix(result, "S") && len(result) > 1 {
		result = result[:len(result)-1]
	}
	if strings.HasSuffix(result, "AY") {
		result = result[:len(result)-2] + "Y"
	} else if strings.HasSuffix(result, "A") && len(result) > 1 {
		result = result[:len(result)-1]
	}
	if len(result) > 6 {
		result = result[:6]
	}
	return result
}
