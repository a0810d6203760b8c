package domain

import "regexp"

// padrões de XSS, SQL injection e code injection, sem diferenciar maiúsculas
var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script.*?>.*?</script>`),
	regexp.MustCompile(`(?i)union.*select`),
	regexp.MustCompile(`(?i)drop.*table`),
	regexp.MustCompile(`(?i)exec.*\(`),
	regexp.MustCompile(`(?i)eval.*\(`),
}

// IsSuspicious verifica path e query crua contra os padrões conhecidos.
func IsSuspicious(path, rawQuery string) bool {
	for _, p := range suspiciousPatterns {
		if p.MatchString(path) || p.MatchString(rawQuery) {
			return true
		}
	}
	return false
}
