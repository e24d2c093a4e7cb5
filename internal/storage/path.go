package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

const slugMaxLen = 48

// ExportObjectKey builds the key an exported result is written under:
// <prefix>/<yyyy>/<mm>/<dd>/<slug>-<unix>.<ext>, where slug is derived from
// the question text.
func ExportObjectKey(prefix, question, format string, now time.Time) (string, error) {
	ext, err := extensionFor(format)
	if err != nil {
		return "", err
	}

	ts := now.UTC()
	name := fmt.Sprintf("%s-%d.%s", Slugify(question), ts.Unix(), ext)
	if err := validatePathComponent(name, "object name"); err != nil {
		return "", err
	}

	key := path.Join(
		fmt.Sprintf("%04d/%02d/%02d", ts.Year(), ts.Month(), ts.Day()),
		name,
	)
	if prefix = cleanPrefix(prefix); prefix != "" {
		key = path.Join(prefix, key)
	}
	return key, nil
}

// Slugify reduces free text to a lowercase hyphenated name safe for object
// keys and filenames. Empty input degrades to "query".
func Slugify(text string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
		if b.Len() >= slugMaxLen {
			break
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "query"
	}
	return slug
}

func extensionFor(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return "csv", nil
	case "json":
		return "json", nil
	case "parquet":
		return "parquet", nil
	default:
		return "", fmt.Errorf("unknown export format %q", format)
	}
}

func cleanPrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	cleaned := path.Clean(prefix)
	if cleaned == "." || cleaned == ".." {
		return ""
	}
	return cleaned
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
