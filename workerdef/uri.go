package workerdef

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// URIStyle selects how FileURIFromPath writes a file URI. Worker versions differ in which form
// they accept.
type URIStyle string

const (
	// URIStyleDoubleSlash is "file://" followed by the path as-is: "file:///tmp/x.png" on Unix, but
	// "file://C:/x.png" on Windows.
	URIStyleDoubleSlash URIStyle = "double-slash"

	// URIStyleTripleSlash is always "file:///" followed by the path without its leading slash.
	URIStyleTripleSlash URIStyle = "triple-slash"
)

var (
	driveLetterPathRegex = regexp.MustCompile(`^/[A-Za-z]:`)
	driveLetterHostRegex = regexp.MustCompile(`^[A-Za-z]:$`)
)

// FileURIFromPath converts an absolute local path to a file URI. Path separators become slashes;
// no other escaping is done, since the worker does not decode percent escapes.
func FileURIFromPath(path string, style URIStyle) string {
	p := filepath.ToSlash(path)
	if style == URIStyleTripleSlash {
		return "file:///" + strings.TrimPrefix(p, "/")
	}
	return "file://" + p
}

// PathFromFileURI converts a file URI from the worker to a local path. It accepts an empty host or
// "localhost", with two or three slashes, and removes the slash in front of a Windows drive letter.
//
// Like FileURIFromPath, it treats everything after the host as the literal path: "#", "?" and "%"
// are ordinary path characters and nothing is percent-decoded.
func PathFromFileURI(uri string) (string, error) {
	const scheme = "file:"
	if len(uri) < len(scheme) || !strings.EqualFold(uri[:len(scheme)], scheme) {
		return "", fmt.Errorf("not a file URI: %q", uri)
	}
	path := uri[len(scheme):]
	if rest, ok := strings.CutPrefix(path, "//"); ok {
		host := rest
		path = ""
		if slash := strings.IndexByte(rest, '/'); slash >= 0 {
			host, path = rest[:slash], rest[slash:]
		}
		switch {
		case host == "" || strings.EqualFold(host, "localhost"):
		case driveLetterHostRegex.MatchString(host):
			// "file://C:/x.png" has the drive letter where the host would be
			path = "/" + host + path
		default:
			return "", fmt.Errorf("file URI %q refers to remote host %q", uri, host)
		}
	}
	if !strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("file URI %q has no absolute path", uri)
	}
	if driveLetterPathRegex.MatchString(path) {
		path = path[1:]
	}
	return filepath.FromSlash(path), nil
}
