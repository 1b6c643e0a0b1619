package backend

import (
	"sort"
	"strings"
)

// Language is one supported language and its identifiers on each backend.
type Language struct {
	Name      string
	Judge0ID  int
	LocalName string
}

var languages = []Language{
	{Name: "python", Judge0ID: 71, LocalName: "python"},
	{Name: "javascript", Judge0ID: 63, LocalName: "javascript"},
	{Name: "java", Judge0ID: 62, LocalName: "java"},
	{Name: "cpp", Judge0ID: 54, LocalName: "cpp"},
	{Name: "c", Judge0ID: 50, LocalName: "c"},
	{Name: "go", Judge0ID: 60, LocalName: "go"},
	{Name: "rust", Judge0ID: 73, LocalName: "rust"},
}

var languageAliases = map[string]string{
	"python3": "python",
	"py":      "python",
	"js":      "javascript",
	"node":    "javascript",
	"nodejs":  "javascript",
	"c++":     "cpp",
	"cxx":     "cpp",
	"golang":  "go",
	"rs":      "rust",
}

// LookupLanguage resolves a client-supplied language name, accepting common aliases.
func LookupLanguage(name string) (Language, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := languageAliases[key]; ok {
		key = canonical
	}
	for _, lang := range languages {
		if lang.Name == key {
			return lang, true
		}
	}
	return Language{}, false
}

// SupportedLanguages returns canonical names in sorted order.
func SupportedLanguages() []string {
	names := make([]string, 0, len(languages))
	for _, lang := range languages {
		names = append(names, lang.Name)
	}
	sort.Strings(names)
	return names
}
