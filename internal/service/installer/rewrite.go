package installer

import (
	"path"
	"strings"
)

// Layout is where a Next.js target keeps its app directory.
type Layout string

const (
	LayoutApp Layout = "app"
	LayoutSrc Layout = "src"
)

// DetectLayout picks the layout from the paths present at the target's root.
func DetectLayout(rootEntries []string) Layout {
	for _, entry := range rootEntries {
		if entry == "src" || strings.HasPrefix(entry, "src/") {
			return LayoutSrc
		}
	}
	return LayoutApp
}

// RewritePath moves a component file between layouts: `app/...` gains the
// `src/` prefix for src-layout targets and loses it for app-layout ones.
// Paths outside the app directory pass through untouched.
func RewritePath(filePath string, target Layout) string {
	switch target {
	case LayoutSrc:
		if filePath == "app" || strings.HasPrefix(filePath, "app/") {
			return "src/" + filePath
		}
		if strings.HasPrefix(filePath, "components/") || strings.HasPrefix(filePath, "lib/") || strings.HasPrefix(filePath, "hooks/") {
			return "src/" + filePath
		}
	default:
		filePath = strings.TrimPrefix(filePath, "src/")
	}
	return filePath
}

// importPrefixes are the alias forms component sources use to reference the
// app directory. The quote keeps matches anchored to import specifiers.
var importPrefixes = []string{`"@/`, `'@/`, "`@/"}

// RewriteImports swaps `/app/` and `/src/app/` in aliased import specifiers
// so installed sources resolve under the target's layout. Rewriting to one
// layout and back yields the original source.
func RewriteImports(source []byte, target Layout) []byte {
	text := string(source)
	for _, prefix := range importPrefixes {
		if target == LayoutSrc {
			text = strings.ReplaceAll(text, prefix+"app/", prefix+"src/app/")
		} else {
			text = strings.ReplaceAll(text, prefix+"src/app/", prefix+"app/")
		}
	}
	return []byte(text)
}

// skippedDirs are directories whose contents are never installed.
var skippedDirs = map[string]struct{}{
	"node_modules": {},
	"dist":         {},
	"build":        {},
	"out":          {},
	"coverage":     {},
}

// skippedFiles are generated files that must stay owned by the target.
var skippedFiles = map[string]struct{}{
	"package-lock.json": {},
	"yarn.lock":         {},
	"pnpm-lock.yaml":    {},
	"bun.lockb":         {},
}

// Installable reports whether a component file should be copied into a
// target repo. Lockfiles, dependency and build directories, and dotfiles are
// left out.
func Installable(filePath string) bool {
	base := path.Base(filePath)
	if _, skip := skippedFiles[base]; skip {
		return false
	}
	for _, segment := range strings.Split(filePath, "/") {
		if segment == "" {
			continue
		}
		if strings.HasPrefix(segment, ".") {
			return false
		}
		if _, skip := skippedDirs[segment]; skip {
			return false
		}
	}
	return true
}
