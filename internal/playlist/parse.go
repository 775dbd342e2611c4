package playlist

import (
	"regexp"
	"strings"
)

var (
	// listPrefix matches leading list markers such as "1.", "12)", "-", "*" or "•".
	listPrefix = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s*`)
	// separators between title and artist, tried in order.
	lineSeparators = []string{" - ", " – ", " — ", " by ", " By "}
)

// ParseSongList parses pasted text with one "Title - Artist" (or
// "Title by Artist") entry per line. Lines that do not yield a valid song are
// skipped.
func ParseSongList(text string) []Song {
	var songs []Song
	for _, line := range strings.Split(text, "\n") {
		line = listPrefix.ReplaceAllString(strings.TrimSpace(line), "")
		if line == "" {
			continue
		}
		song, ok := parseLine(line)
		if !ok {
			continue
		}
		songs = append(songs, song)
	}
	return songs
}

func parseLine(line string) (Song, bool) {
	for _, sep := range lineSeparators {
		idx := strings.Index(line, sep)
		if idx <= 0 {
			continue
		}
		song := Song{
			Title:  strings.Trim(strings.TrimSpace(line[:idx]), `"`),
			Artist: strings.TrimSpace(line[idx+len(sep):]),
		}
		if song.Valid() {
			return song, true
		}
	}
	return Song{}, false
}
