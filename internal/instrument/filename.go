// File: internal/instrument/filename.go
package instrument

import (
	"path"
	"strings"
)

// anchorDirs are the source roots whose nested structure is kept in tags, in
// order of preference.
var anchorDirs = []string{"pages", "components"}

// DeriveFilename computes the filename part of a source location tag from a
// module id. The base name loses everything from its first dot. When the path
// has a "pages" segment (or failing that a "components" segment) with at
// least one segment after it, the tag keeps the path from that segment on,
// so same-named files in different folders stay distinct. Otherwise the bare
// base name is used.
func DeriveFilename(id string) string {
	id = strings.ReplaceAll(stripQuery(id), "\\", "/")
	parts := strings.Split(id, "/")
	last := len(parts) - 1

	for _, anchor := range anchorDirs {
		for i, part := range parts[:last] {
			if part != anchor {
				continue
			}
			rel := append([]string(nil), parts[i:]...)
			rel[len(rel)-1] = trimExt(rel[len(rel)-1])
			return strings.Join(rel, "/")
		}
	}
	return trimExt(parts[last])
}

func trimExt(name string) string {
	if i := strings.Index(name, "."); i >= 0 {
		return name[:i]
	}
	return name
}

// stripQuery drops a bundler query suffix such as "?v=3f2a" or "?import".
func stripQuery(id string) string {
	if i := strings.IndexAny(id, "?#"); i >= 0 {
		return id[:i]
	}
	return id
}

// extOf returns the extension of id, ignoring any query suffix.
func extOf(id string) string {
	return path.Ext(strings.ReplaceAll(stripQuery(id), "\\", "/"))
}
