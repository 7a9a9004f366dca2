package backend

import (
	"net/url"
	"strings"
)

// MediaRef is a catalogue reference split into its media type and id.
type MediaRef struct {
	Type string
	ID   string
	// URL is set when the caller supplied a full link.
	URL string
}

// ParseMediaRef accepts "<id>", "<type>/<id>" or a full URL. defaultType
// applies when the ref carries no type; "album" is used when both are empty.
func ParseMediaRef(ref, defaultType string) (MediaRef, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return MediaRef{}, false
	}
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" && u.Host != "" {
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		out := MediaRef{URL: ref}
		if n := len(segments); n >= 2 {
			out.Type = segments[n-2]
			out.ID = segments[n-1]
		}
		return out, true
	}
	mediaType := strings.ToLower(strings.TrimSpace(defaultType))
	if mediaType == "" {
		mediaType = "album"
	}
	id := ref
	if before, after, found := strings.Cut(ref, "/"); found {
		mediaType = strings.ToLower(strings.TrimSpace(before))
		id = strings.TrimSpace(after)
	}
	if id == "" || strings.Contains(id, "/") {
		return MediaRef{}, false
	}
	return MediaRef{Type: mediaType, ID: id}, true
}
