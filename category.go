// category.go maps file extensions to the subfolders used when
// auto-categorize is on.
package main

import (
	"path/filepath"
	"strings"
)

var categoryByExt = map[string]string{}

func init() {
	groups := map[string][]string{
		"Images":    {"jpg", "jpeg", "png", "heic", "webp", "tiff", "gif", "bmp", "svg"},
		"Documents": {"md", "txt", "docx", "doc", "rtf", "pptx", "xlsx", "xls"},
		"PDFs":      {"pdf"},
		"Archives":  {"zip", "rar", "7z", "tar", "gz", "bz2", "xz"},
	}
	for folder, exts := range groups {
		for _, ext := range exts {
			categoryByExt[ext] = folder
		}
	}
}

// CategoryFolder returns the category subfolder for ext (with or without
// dot, any case), or "" if the extension has no category.
func CategoryFolder(ext string) string {
	return categoryByExt[strings.ToLower(strings.TrimPrefix(ext, "."))]
}

// categorize appends the category subfolder for ext to folder. Folders that
// already end in that category are returned unchanged.
func categorize(folder, ext string) string {
	sub := CategoryFolder(ext)
	if sub == "" || filepath.Base(folder) == sub {
		return folder
	}
	return filepath.Join(folder, sub)
}
