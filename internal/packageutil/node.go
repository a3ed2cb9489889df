package packageutil

import (
	"fmt"
	"regexp"
	"strings"
)

// nativePackage is reported for frames coming from V8 natives.
const nativePackage = "native"

var (
	packageRegex = regexp.MustCompile(
		`[/\\]([^/\\].+?)[/\\]([^/\\].+?)[/\\].*`,
	)
	t = true
	f = false
)

type PackageInfo struct {
	Package string
	InApp   *bool
}

// IsInApp returns false only when the package is known to be a dependency.
func (p PackageInfo) IsInApp() bool {
	return p.InApp == nil || *p.InApp
}

// ParseNodePackageFromPath finds the package a script belongs to from its
// path or url.
func ParseNodePackageFromPath(p string) PackageInfo {
	if p == "" {
		return PackageInfo{
			InApp: &f,
		}
	}

	// V8 natives
	if strings.HasPrefix(p, "native ") {
		return PackageInfo{
			Package: nativePackage,
			InApp:   &f,
		}
	}

	// if it's a official node package
	if strings.HasPrefix(p, "node:") {
		return PackageInfo{
			Package: strings.Split(p, "/")[0],
			InApp:   &f,
		}
	}

	splits := strings.Split(p, "node_modules")

	// if there's no node_modules, user package
	if len(splits) == 1 {
		return PackageInfo{
			InApp: &t,
		}
	}

	results := packageRegex.FindStringSubmatch(splits[len(splits)-1])

	// if it's a third party package
	if len(results) > 2 {
		if results[1][0] == '@' {
			return PackageInfo{
				Package: fmt.Sprintf("%s/%s", results[1], results[2]),
				InApp:   &f,
			}
		}
		return PackageInfo{
			Package: results[1],
			InApp:   &f,
		}
	}

	return PackageInfo{
		InApp: &t,
	}
}
