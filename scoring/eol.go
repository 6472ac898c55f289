package scoring

import "strings"

// EOLSignature pairs a lowercase substring pattern with the reason the
// matched software is considered end-of-life.
type EOLSignature struct {
	Pattern string
	Reason  string
}

// eolSignatures is the maintained denylist of end-of-life software.
// The slice is ordered so that matching is deterministic: the first
// signature found in the server header or technology list wins.
var eolSignatures = []EOLSignature{
	{"php/5", "PHP 5.x is end-of-life since January 2019"},
	{"php/7.0", "PHP 7.0 is end-of-life since December 2018"},
	{"php/7.1", "PHP 7.1 is end-of-life since December 2019"},
	{"php/7.2", "PHP 7.2 is end-of-life since November 2020"},
	{"apache/2.2", "Apache 2.2.x is end-of-life since July 2017"},
	{"nginx/1.1", "Nginx 1.1x is significantly outdated"},
	{"nginx/1.0", "Nginx 1.0x is significantly outdated"},
	{"openssl/1.0", "OpenSSL 1.0.x is end-of-life since December 2019"},
	{"jquery/1.", "jQuery 1.x has known security vulnerabilities"},
	{"jquery/2.", "jQuery 2.x has known security vulnerabilities"},
	{"angular/1.", "AngularJS 1.x is end-of-life since December 2021"},
	{"node/8", "Node.js 8 is end-of-life since December 2019"},
	{"node/10", "Node.js 10 is end-of-life since April 2021"},
	{"node/12", "Node.js 12 is end-of-life since April 2022"},
	{"python/2", "Python 2 is end-of-life since January 2020"},
	{"tomcat/7", "Apache Tomcat 7 is end-of-life"},
	{"tomcat/8.0", "Apache Tomcat 8.0 is end-of-life"},
	{"iis/6", "IIS 6 is end-of-life"},
	{"iis/7", "IIS 7 is end-of-life"},
}

// matchEndOfLife checks the server header first, then the technology list,
// against the EOL denylist. Returns the matched signature.
func matchEndOfLife(a Attributes) (EOLSignature, bool) {
	if a.Server != "" {
		server := strings.ToLower(a.Server)
		for _, sig := range eolSignatures {
			if matchesSignature(server, sig.Pattern) {
				return sig, true
			}
		}
	}

	for _, tech := range a.Technologies {
		lower := strings.ToLower(tech)
		for _, sig := range eolSignatures {
			if matchesSignature(lower, sig.Pattern) {
				return sig, true
			}
		}
	}

	return EOLSignature{}, false
}

// matchesSignature reports whether pattern occurs in s on a version-segment
// boundary. When the pattern ends in a digit, the character after the match
// must not be another digit: "nginx/1.1" matches "nginx/1.1" and
// "nginx/1.1.9" but never "nginx/1.18.0".
func matchesSignature(s, pattern string) bool {
	if pattern == "" || !isDigit(pattern[len(pattern)-1]) {
		return strings.Contains(s, pattern)
	}

	for start := 0; start <= len(s)-len(pattern); {
		idx := strings.Index(s[start:], pattern)
		if idx < 0 {
			return false
		}
		end := start + idx + len(pattern)
		if end == len(s) || !isDigit(s[end]) {
			return true
		}
		start += idx + 1
	}
	return false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// EOLSignatures returns a copy of the denylist, in evaluation order.
// Exposed so the gateway can publish the scoring model as a resource document.
func EOLSignatures() []EOLSignature {
	out := make([]EOLSignature, len(eolSignatures))
	copy(out, eolSignatures)
	return out
}
