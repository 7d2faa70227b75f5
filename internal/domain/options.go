package domain

import (
	"sort"
	"strings"
)

// MergeVoices combines locally configured voices with the backend's list.
// Entries are keyed by ID; backend entries replace local ones and fill in
// empty labels from them.
func MergeVoices(local, remote []Voice) []Voice {
	byID := make(map[string]Voice, len(local)+len(remote))
	order := make([]string, 0, len(local)+len(remote))

	add := func(v Voice) {
		id := strings.TrimSpace(v.ID)
		if id == "" {
			return
		}
		v.ID = id
		v.Language = NormalizeLanguageCode(v.Language)
		prev, seen := byID[id]
		if !seen {
			order = append(order, id)
		} else if v.Label == "" {
			v.Label = prev.Label
		}
		byID[id] = v
	}

	for _, v := range local {
		add(v)
	}
	for _, v := range remote {
		add(v)
	}

	merged := make([]Voice, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}
	SortVoices(merged)
	return merged
}

// SortVoices orders voices by language, then label, then ID.
func SortVoices(voices []Voice) {
	sort.SliceStable(voices, func(i, j int) bool {
		a, b := voices[i], voices[j]
		if a.Language != b.Language {
			return a.Language < b.Language
		}
		la, lb := strings.ToLower(a.DisplayLabel()), strings.ToLower(b.DisplayLabel())
		if la != lb {
			return la < lb
		}
		return a.ID < b.ID
	})
}

// VoicesForLanguage filters voices whose language matches the base language of code.
func VoicesForLanguage(voices []Voice, code string) []Voice {
	base := baseLanguage(NormalizeLanguageCode(code))
	if base == "" {
		return voices
	}
	var out []Voice
	for _, v := range voices {
		if baseLanguage(v.Language) == base {
			out = append(out, v)
		}
	}
	return out
}

func (v Voice) DisplayLabel() string {
	if v.Label != "" {
		return v.Label
	}
	return v.ID
}

func baseLanguage(code string) string {
	if i := strings.IndexByte(code, '-'); i > 0 {
		return code[:i]
	}
	return code
}

// BuiltinVoices are offered even when the backend cannot list its voices.
var BuiltinVoices = []Voice{
	{ID: "en-US-AriaNeural", Label: "Aria", Language: "en-US", Gender: "female"},
	{ID: "en-US-GuyNeural", Label: "Guy", Language: "en-US", Gender: "male"},
	{ID: "fr-FR-DeniseNeural", Label: "Denise", Language: "fr-FR", Gender: "female"},
	{ID: "fr-FR-HenriNeural", Label: "Henri", Language: "fr-FR", Gender: "male"},
	{ID: "de-DE-KatjaNeural", Label: "Katja", Language: "de-DE", Gender: "female"},
	{ID: "es-ES-AlvaroNeural", Label: "Álvaro", Language: "es-ES", Gender: "male"},
}
