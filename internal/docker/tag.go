package docker

import (
	"strings"

	"github.com/alexsergivan/transliterator"
)

const maxTagLength = 128

var translit = transliterator.NewTransliterator(nil)

// ImageTag builds a valid docker reference for a stack. Different stacks may
// share a reference after normalisation, containers still carry the exact names.
func ImageTag(stackName, version string) string {
	return normalizeRepository(stackName) + ":" + normalizeTag(version)
}

func normalizeRepository(name string) string {
	name = strings.ToLower(translit.Transliterate(name, "en"))
	parts := strings.Split(name, "/")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Map(func(ch rune) rune {
			switch {
			case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
				return ch
			case ch == '.', ch == '_', ch == '-':
				return ch
			}
			return '-'
		}, part)
		part = strings.Trim(part, "._-")
		if part != "" {
			clean = append(clean, part)
		}
	}
	if len(clean) == 0 {
		return "stack"
	}
	return strings.Join(clean, "/")
}

func normalizeTag(version string) string {
	version = strings.Map(func(ch rune) rune {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			return ch
		case ch == '.', ch == '_', ch == '-':
			return ch
		}
		return '-'
	}, translit.Transliterate(version, "en"))
	version = strings.TrimLeft(version, ".-")
	version = strings.TrimRight(version, "-")
	if len(version) > maxTagLength {
		version = version[:maxTagLength]
	}
	if version == "" {
		return "latest"
	}
	return version
}
