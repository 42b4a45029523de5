package merger

import "strings"

// BaseName derives a suggested output base name from the clip names: the
// longest common prefix, trimmed of trailing separators and digits. Falls
// back to "merged" when nothing usable remains.
func BaseName(names []string) string {
	if len(names) == 0 {
		return "merged"
	}

	prefix := stripExtension(names[0])
	for _, name := range names[1:] {
		name = stripExtension(name)
		prefix = commonPrefix(prefix, name)
		if prefix == "" {
			break
		}
	}

	prefix = strings.TrimRight(prefix, "0123456789")
	prefix = strings.TrimRight(prefix, " ._-")
	if prefix == "" {
		return "merged"
	}
	return prefix
}

// FileName returns the suggested artifact filename: {base}.mp4 when the
// negotiated MIME type mentions mp4, else {base}.webm.
func FileName(base string, spec OutputSpec) string {
	if base == "" {
		base = "merged"
	}
	ext := "webm"
	if strings.Contains(spec.MimeType, "mp4") {
		ext = "mp4"
	}
	return base + "." + ext
}

func stripExtension(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}

func commonPrefix(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}
