package race

import (
	"strconv"
	"strings"

	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/registry"
)

// tokenize lowercases input and splits it on whitespace and commas.
func tokenize(input string) []string {
	return strings.FieldsFunc(strings.ToLower(input), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}

// parseIndex parses a positive 1-based menu index.
func parseIndex(tok string) (int, bool) {
	n, err := strconv.Atoi(tok)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func lookupTrack(tracks []registry.Track, tok string) (registry.Track, bool) {
	if n, ok := parseIndex(tok); ok {
		if n > len(tracks) {
			return registry.Track{}, false
		}
		return tracks[n-1], true
	}
	for _, t := range tracks {
		if strings.EqualFold(t.ID, tok) {
			return t, true
		}
	}
	return registry.Track{}, false
}

func lookupDriver(drivers []registry.Driver, tok string) (registry.Driver, bool) {
	if n, ok := parseIndex(tok); ok {
		if n > len(drivers) {
			return registry.Driver{}, false
		}
		return drivers[n-1], true
	}
	for _, d := range drivers {
		if strings.EqualFold(d.ID, tok) {
			return d, true
		}
	}
	return registry.Driver{}, false
}

// parseWeather accepts a weather name ("heavy_rain", "heavy rain") or its
// 1-based menu index.
func parseWeather(tokens []string) (model.Weather, bool) {
	if len(tokens) == 1 {
		if n, ok := parseIndex(tokens[0]); ok {
			if n > len(model.Weathers) {
				return "", false
			}
			return model.Weathers[n-1], true
		}
	}
	w := model.Weather(strings.Join(tokens, "_"))
	return w, w.Valid()
}

func parseAnswer(tok string) (yes, ok bool) {
	switch tok {
	case "y", "yes":
		return true, true
	case "n", "no":
		return false, true
	}
	return false, false
}
