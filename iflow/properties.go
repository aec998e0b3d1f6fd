package iflow

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// PropertyMap holds resolved configuration properties from one or more
// property-file sources, keyed by property name.
type PropertyMap map[string]string

// ExtractProperties parses flat key=value property-file text into a
// PropertyMap. Lines are trimmed; empty lines and lines starting with '#'
// are ignored. The split happens on the first '=' only, so values may
// themselves contain '='. Lines without '=' are skipped silently.
//
// The function is pure and has no failure mode: text with no valid lines
// yields an empty map.
func ExtractProperties(content string) PropertyMap {
	props := PropertyMap{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		props[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return props
}

// Merge copies entries from other into m. On exact key collision the
// first-found value is kept and the collision is logged as informational.
func (m PropertyMap) Merge(other PropertyMap, log *logrus.Logger) {
	for k, v := range other {
		if existing, ok := m[k]; ok {
			if log != nil {
				log.WithFields(logrus.Fields{
					"key":  k,
					"kept": existing,
				}).Info("property key collision, keeping first value")
			}
			continue
		}
		m[k] = v
	}
}

// Resolve looks up a parameter name against the map using the resolution
// order applied to parameterized configuration values: exact key match
// first, then a key ending in "_<name>", then a case-insensitive match.
func (m PropertyMap) Resolve(name string) (string, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	suffix := "_" + name
	for k, v := range m {
		if strings.HasSuffix(k, suffix) {
			return v, true
		}
	}
	lower := strings.ToLower(name)
	for k, v := range m {
		if strings.ToLower(k) == lower {
			return v, true
		}
	}
	return "", false
}
