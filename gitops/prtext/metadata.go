package prtext

import (
	"log/slog"
	"strings"
)

const (
	begin = "--- promotion metadata begin ---"
	end   = "--- promotion metadata end ---"
)

const (
	keySource     = "source"
	keyTarget     = "target"
	keyKind       = "kind"
	keyTagVersion = "tag_version"
)

// Metadata describes a promotion. It is embedded in
// pull request bodies.
type Metadata struct {
	Source     string
	Target     string
	Kind       string
	TagVersion string
}

// Body produces a pull request body: a summary line
// followed by m between begin/end markers. Empty
// fields are omitted.
func Body(m Metadata) string {
	var sb strings.Builder

	sb.WriteString("Automated promotion of ")
	sb.WriteString(m.Source)
	sb.WriteString(" into ")
	sb.WriteString(m.Target)
	sb.WriteString(".\n\n")
	sb.WriteString(begin)
	sb.WriteByte('\n')

	for _, kv := range [][2]string{
		{keySource, m.Source},
		{keyTarget, m.Target},
		{keyKind, m.Kind},
		{keyTagVersion, m.TagVersion},
	} {
		if kv[1] == "" {
			continue
		}

		sb.WriteString(kv[0])
		sb.WriteString(": ")
		sb.WriteString(kv[1])
		sb.WriteByte('\n')
	}

	sb.WriteString(end)
	sb.WriteByte('\n')

	return sb.String()
}

// ParseMetadata extracts the metadata block of a pull
// request body. It reports false when the body has no
// complete block.
func ParseMetadata(body string) (Metadata, bool) {
	var (
		m      Metadata
		found  bool
		inside bool
	)

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")

		switch line {
		case begin:
			inside = true
			found = true

			continue
		case end:
			inside = false

			continue
		}

		if !inside {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		value = strings.TrimSpace(value)

		switch strings.TrimSpace(key) {
		case keySource:
			m.Source = value
		case keyTarget:
			m.Target = value
		case keyKind:
			m.Kind = value
		case keyTagVersion:
			m.TagVersion = value
		}
	}

	if inside {
		slog.Warn("unable to find end marker in pull request body")

		return Metadata{}, false
	}

	return m, found
}
