// Package export assembles the downloadable archive: a results workbook plus every source document.
package export

import (
	"fmt"
	"strings"
)

// splitExt splits name at its last dot. A name without a dot has an empty extension.
func splitExt(name string) (base, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return name, ""
	}
	return name[:i], name[i:]
}

// UniqueNames resolves file name collisions in list order: a name already used gets "_<n>"
// inserted before its extension, with n counting up from 1 until the result is unused.
func UniqueNames(names []string) []string {
	used := make(map[string]struct{}, len(names))
	out := make([]string, len(names))
	for i, name := range names {
		resolved := name
		if _, taken := used[resolved]; taken {
			base, ext := splitExt(name)
			for n := 1; ; n++ {
				resolved = fmt.Sprintf("%s_%d%s", base, n, ext)
				if _, taken := used[resolved]; !taken {
					break
				}
			}
		}
		used[resolved] = struct{}{}
		out[i] = resolved
	}
	return out
}
