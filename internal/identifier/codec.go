// Package identifier decodes the opaque video identifiers used by the
// upload pipeline. An identifier is the URL-safe base64 encoding of the
// storage path "container/namespace/filename". Some producers strip the
// trailing '=' padding before handing the identifier to clients, so
// decoding tolerates every recognized padding length before declaring
// the input invalid.
package identifier

import (
	"encoding/base64"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

// Locator is the decoded storage location of a single video blob.
type Locator struct {
	// Container is the object-store bucket holding the blob.
	Container string
	// ObjectKey is the full key within the container, e.g. "u42/clip9.mp4".
	ObjectKey string
	// VideoID is the logical video id derived from the object key:
	// path separators become dashes and the extension is dropped.
	VideoID string
}

// Decode parses an encoded identifier into a Locator. Decoding is
// deterministic and total: it either returns exactly one Locator or an
// error; it never returns a partial value. Padding variants are tried in
// order before the identifier is rejected.
func Decode(encoded string) (Locator, error) {
	if encoded == "" {
		return Locator{}, fmt.Errorf("identifier is empty")
	}

	var lastErr error
	for _, candidate := range paddingVariants(encoded) {
		raw, err := base64.URLEncoding.DecodeString(candidate)
		if err != nil {
			lastErr = err
			continue
		}
		loc, err := parsePath(string(raw))
		if err != nil {
			lastErr = err
			continue
		}
		return loc, nil
	}
	return Locator{}, fmt.Errorf("identifier %q is not a valid encoded path: %w", encoded, lastErr)
}

// CanonicalForms returns the ordered list of encodings under which records
// tied to this identifier may have been written: the identifier as given,
// the padding-stripped form, and the fully padded form. Duplicates are
// removed, order preserved. Callers use these as match values when
// discovering chunk records whose metadata carries the producer's encoding.
func CanonicalForms(encoded string) []string {
	trimmed := strings.TrimRight(encoded, "=")

	forms := []string{encoded, trimmed}
	if padLen := (4 - len(trimmed)%4) % 4; padLen > 0 {
		forms = append(forms, trimmed+strings.Repeat("=", padLen))
	}

	seen := make(map[string]bool, len(forms))
	out := forms[:0]
	for _, f := range forms {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// paddingVariants lists the candidate encodings to attempt, canonical
// form first. Base64 text length is always a multiple of four, so at most
// two '=' characters can be missing.
func paddingVariants(encoded string) []string {
	trimmed := strings.TrimRight(encoded, "=")

	variants := []string{encoded}
	for pad := 0; pad <= 2; pad++ {
		v := trimmed + strings.Repeat("=", pad)
		if v != encoded && len(v)%4 == 0 {
			variants = append(variants, v)
		}
	}
	return variants
}

// parsePath validates a decoded "container/key" path and builds the Locator.
func parsePath(p string) (Locator, error) {
	if !utf8.ValidString(p) {
		return Locator{}, fmt.Errorf("decoded path is not valid UTF-8")
	}
	if strings.HasPrefix(p, "/") {
		return Locator{}, fmt.Errorf("decoded path %q has a leading slash", p)
	}

	parts := strings.SplitN(p, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Locator{}, fmt.Errorf("decoded path %q is not of the form container/key", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return Locator{}, fmt.Errorf("decoded path %q contains an invalid segment", p)
		}
	}

	key := parts[1]
	return Locator{
		Container: parts[0],
		ObjectKey: key,
		VideoID:   videoIDFromKey(key),
	}, nil
}

// videoIDFromKey derives the logical video id from an object key:
// "u42/clip9.mp4" becomes "u42-clip9".
func videoIDFromKey(key string) string {
	trimmed := strings.TrimSuffix(key, path.Ext(key))
	return strings.ReplaceAll(trimmed, "/", "-")
}
