// Package utils provides utility functions.
package utils

import (
	"bytes"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mitchellh/go-homedir"
)

var frontmatterBoundaries = []byte("---")

var yamlPattern = regexp.MustCompile(`(?m)^---\r?\n(\s*\r?\n)?`)

// RemoveFrontmatter removes a YAML front matter block from the start of a
// document.
func RemoveFrontmatter(content []byte) []byte {
	if !bytes.HasPrefix(content, frontmatterBoundaries) {
		return content
	}
	if indices := yamlPattern.FindAllIndex(content, 2); len(indices) > 1 {
		return content[indices[1][1]:]
	}
	return content
}

// ExpandPath expands tilde and all environment variables from the given
// path.
func ExpandPath(path string) string {
	s, err := homedir.Expand(path)
	if err == nil {
		return os.ExpandEnv(s)
	}
	return os.ExpandEnv(path)
}

// IsURL reports whether s is an http or https URL.
func IsURL(s string) bool {
	u, err := url.ParseRequestURI(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

var markdownExtensions = map[string]bool{
	".md":       true,
	".mdown":    true,
	".mkdn":     true,
	".mkd":      true,
	".markdown": true,
}

// IsMarkdownFile reports whether the filename has a Markdown extension.
// Files without an extension count as Markdown.
func IsMarkdownFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == "" || markdownExtensions[ext]
}
