package slug

import (
	"crypto/rand"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Option configures the slug generation behavior.
type Option func(*config)

type config struct {
	maxLength     int
	separator     string
	customReplace map[string]string
	suffixLength  int
}

func defaultConfig() *config {
	return &config{
		separator: "-",
	}
}

// MaxLength caps the slug length in characters. Zero means no limit.
func MaxLength(n int) Option {
	return func(c *config) {
		c.maxLength = n
	}
}

// Separator sets the separator placed between words. Default is "-".
func Separator(s string) Option {
	return func(c *config) {
		c.separator = s
	}
}

// CustomReplace applies string replacements before slugification,
// e.g. {"&": "and"}.
func CustomReplace(replacements map[string]string) Option {
	return func(c *config) {
		c.customReplace = replacements
	}
}

// WithSuffix appends a random lowercase alphanumeric suffix of the given length.
func WithSuffix(length int) Option {
	return func(c *config) {
		c.suffixLength = length
	}
}

// letterReplacer covers letters that do not decompose into a base letter
// plus combining marks under NFD.
var letterReplacer = strings.NewReplacer(
	"ß", "ss", "ẞ", "ss",
	"æ", "ae", "Æ", "ae",
	"œ", "oe", "Œ", "oe",
	"ø", "o", "Ø", "o",
	"ł", "l", "Ł", "l",
	"đ", "d", "Đ", "d",
	"ð", "d", "Ð", "d",
	"þ", "th", "Þ", "th",
	"ı", "i",
)

// transliterate folds known non-ASCII Latin letters to ASCII. Characters it
// does not know are left untouched and later treated as separators.
func transliterate(s string) string {
	s = letterReplacer.Replace(s)
	// A transformer chain is stateful, so it is built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Make creates a lowercase URL-safe slug from the input string.
// Known accented letters are transliterated, every other run of
// non-alphanumeric characters collapses into a single separator, and leading
// or trailing separators are trimmed.
func Make(s string, opts ...Option) string {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	for old, repl := range cfg.customReplace {
		s = strings.ReplaceAll(s, old, repl)
	}

	s = transliterate(s)

	var b strings.Builder
	b.Grow(len(s))

	lastWasSep := true // avoids a leading separator
	sepLen := len(cfg.separator)

	for _, r := range s {
		if cfg.maxLength > 0 && b.Len() >= cfg.maxLength {
			break
		}

		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastWasSep = false
			continue
		}

		if !lastWasSep {
			if cfg.maxLength > 0 && b.Len()+sepLen > cfg.maxLength {
				break
			}
			b.WriteString(cfg.separator)
			lastWasSep = true
		}
	}

	result := b.String()
	if cfg.separator != "" {
		result = strings.TrimSuffix(result, cfg.separator)
	}

	if cfg.suffixLength > 0 {
		result = appendSuffix(result, cfg)
	}

	return result
}

func appendSuffix(base string, cfg *config) string {
	suffixLen := cfg.suffixLength
	if cfg.maxLength > 0 && suffixLen > cfg.maxLength {
		suffixLen = cfg.maxLength
	}
	suffix := generateSuffix(suffixLen)

	if cfg.maxLength > 0 {
		room := cfg.maxLength - len(cfg.separator) - suffixLen
		if room <= 0 {
			return suffix
		}
		if len(base) > room {
			base = strings.TrimSuffix(base[:room], cfg.separator)
		}
	}

	if base == "" {
		return suffix
	}
	return base + cfg.separator + suffix
}

// Sanitize turns arbitrary input into a slug that passes Validate, or returns
// an empty string when nothing usable remains. Results shorter than MinLength
// are repaired with a random suffix; longer ones are truncated to MaxLen.
func Sanitize(s string) string {
	out := Make(s, MaxLength(MaxLen))
	switch {
	case out == "":
		return ""
	case len(out) < MinLen:
		return Make(out, MaxLength(MaxLen), WithSuffix(4))
	}
	return out
}

// Generate returns a random slug built from prefix and a random suffix.
// It is the fallback when Sanitize yields nothing.
func Generate(prefix string) string {
	p := Make(prefix, MaxLength(MaxLen-7))
	return Make(p, MaxLength(MaxLen), WithSuffix(6))
}

// WithNumber returns base with "-n" appended, truncating base so the
// result never exceeds MaxLen.
func WithNumber(base string, n int) string {
	suffix := "-" + strconv.Itoa(n)
	if len(base)+len(suffix) > MaxLen {
		base = strings.TrimRight(base[:MaxLen-len(suffix)], "-")
	}
	return base + suffix
}

// generateSuffix creates a random lowercase alphanumeric string.
func generateSuffix(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		for i := range b {
			b[i] = charset[i%len(charset)]
		}
		return string(b)
	}

	for i := range b {
		b[i] = charset[b[i]%byte(len(charset))]
	}
	return string(b)
}
