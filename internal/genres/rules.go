package genres

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/justestif/go-spotify-playlist-curator/internal/matcher"
)

// NoGenreKey and NoGenreLabel name the bucket for songs whose artist has no
// genre tags.
const (
	NoGenreKey   = "no-genre"
	NoGenreLabel = "No genre"
)

// Rule maps genre tags matching Pattern to a named bucket.
type Rule struct {
	Key     string
	Label   string
	Pattern *regexp.Regexp
}

func rule(key, label, pattern string) Rule {
	return Rule{Key: key, Label: label, Pattern: regexp.MustCompile(`(?i)` + pattern)}
}

// Rules are tried in order; the first one matching a tag wins.
var Rules = []Rule{
	rule("k-pop", "K-Pop", `\bk[\s-]?pop\b`),
	rule("j-music", "J-Pop & J-Rock", `\bj[\s-]?(?:pop|rock)\b|\banime\b`),
	rule("hip-hop", "Hip-Hop", `hip[\s-]?hop|\brap\b|\btrap\b|\bdrill\b|\bgrime\b`),
	rule("rnb-soul", "R&B & Soul", `\br&b\b|\brnb\b|rhythm and blues|\bsoul\b|motown`),
	rule("funk-disco", "Funk & Disco", `\bfunk|\bdisco\b|boogie`),
	rule("latin", "Latin", `latin|reggaeton|salsa|bachata|cumbia|urbano|\bmpb\b|sertanejo|corrido`),
	rule("reggae", "Reggae & Dancehall", `reggae|dancehall|\bska\b|\bdub\b`),
	rule("afrobeats", "Afrobeats", `\bafro|amapiano|highlife`),
	rule("house", "House", `\bhouse\b`),
	rule("techno", "Techno", `techno`),
	rule("trance", "Trance", `trance`),
	rule("drum-and-bass", "Drum & Bass", `drum (?:and|&|n) bass|\bdnb\b|\bjungle\b|breakbeat|uk garage`),
	rule("electronic", "Electronic", `\bedm\b|electro|electronic|dubstep|synthwave|big room|\bidm\b|future bass`),
	rule("chill", "Chill & Ambient", `\bambient\b|\bchill|lo[\s-]?fi|downtempo|trip hop`),
	rule("metal", "Metal", `metal|djent|grindcore|deathcore`),
	rule("punk", "Punk & Emo", `punk|\bemo\b|hardcore|screamo`),
	rule("indie", "Indie & Alternative", `\bindie|alternative|shoegaze|dream pop|post-rock|\balt\b`),
	rule("rock", "Rock", `\brock\b|grunge|garage rock|psychedelic`),
	rule("country", "Country & Americana", `country|americana|bluegrass|honky[\s-]?tonk|outlaw`),
	rule("folk", "Folk & Acoustic", `\bfolk|singer-songwriter|acoustic`),
	rule("jazz", "Jazz", `jazz|bebop|\bswing\b|bossa nova`),
	rule("blues", "Blues", `\bblues\b`),
	rule("classical", "Classical & Soundtrack", `classical|orchestra|baroque|\bopera\b|symphon|soundtrack|compositional`),
	rule("gospel", "Gospel & Worship", `gospel|christian|worship|\bccm\b`),
	rule("pop", "Pop", `\bpop\b`),
}

// Classify returns the bucket for an artist's genre tags. Tags are taken in
// order and each is tested against every rule in order. When no rule
// matches, the bucket is derived from the first non-blank tag.
func Classify(tags []string) (key, label string) {
	first := ""
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if first == "" {
			first = tag
		}
		for _, r := range Rules {
			if r.Pattern.MatchString(tag) {
				return r.Key, r.Label
			}
		}
	}

	if first == "" {
		return NoGenreKey, NoGenreLabel
	}
	key = Slug(first)
	if key == "" {
		return NoGenreKey, NoGenreLabel
	}
	return key, FormatLabel(first)
}

// Slug turns a raw tag into a bucket key: "Música Popular" becomes
// "musica-popular".
func Slug(tag string) string {
	return strings.ReplaceAll(matcher.NormalizeTitle(tag), " ", "-")
}

// acronyms are rendered upper case in labels.
var acronyms = map[string]string{
	"uk": "UK", "us": "US", "usa": "USA", "edm": "EDM", "idm": "IDM", "ebm": "EBM",
	"dj": "DJ", "mc": "MC", "nyc": "NYC", "la": "LA", "r&b": "R&B", "rnb": "RnB",
	"dnb": "DnB", "nz": "NZ", "dc": "DC", "ccm": "CCM", "mpb": "MPB", "opm": "OPM",
}

// FormatLabel title-cases a raw tag for display: "uk post-punk" becomes
// "UK Post-Punk". Segments already written in capitals are kept.
func FormatLabel(tag string) string {
	words := strings.Fields(tag)
	for i, word := range words {
		parts := strings.Split(word, "-")
		for j, part := range parts {
			parts[j] = formatSegment(part)
		}
		words[i] = strings.Join(parts, "-")
	}
	return strings.Join(words, " ")
}

func formatSegment(s string) string {
	if s == "" {
		return s
	}
	if a, ok := acronyms[strings.ToLower(s)]; ok {
		return a
	}
	if len(s) <= 4 && isUpper(s) {
		return s
	}

	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func isUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}
