package adoftp

import (
	"errors"
	"path/filepath"
	"strings"
)

var errPathEscapesJail = errors.New("path escapes the base directory")

// pathJail resolves client-supplied paths against the base directory and
// refuses anything that escapes it. base holds the canonical host path of
// the virtual root, stored as the empty string when the virtual root is the
// host root so that composition yields "/foo" and not "//foo".
type pathJail struct {
	base string
}

func newPathJail(baseDir string) (*pathJail, error) {
	canonical, err := filepath.Abs(baseDir)
	if err == nil {
		canonical, err = filepath.EvalSymlinks(canonical)
	}

	if err != nil {
		return nil, newFileAccessError("could not canonicalize base directory", err)
	}

	if canonical == "/" {
		canonical = ""
	}

	return &pathJail{base: canonical}, nil
}

// resolve maps a client path to a canonical host path or refuses it.
// Relative inputs are taken from cwd, the virtual working directory.
// Canonicalization comes first and the prefix check second: a check on the
// raw input would let ".." walk out of the jail.
func (j *pathJail) resolve(cwd, userInput string) (string, error) {
	var candidate string
	if strings.HasPrefix(userInput, "/") {
		candidate = j.base + userInput
	} else {
		candidate = j.base + cwd + userInput
	}

	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return "", newFileAccessError("could not resolve path", err)
	}

	if !j.contains(resolved) {
		return "", errPathEscapesJail
	}

	return resolved, nil
}

// contains reports whether a canonical host path stays inside the base
// directory. The base itself counts as inside.
func (j *pathJail) contains(hostPath string) bool {
	if j.base == "" {
		return strings.HasPrefix(hostPath, "/")
	}

	return hostPath == j.base || strings.HasPrefix(hostPath, j.base+"/")
}

// projectIntoCwd turns a jailed host directory path into the virtual cwd
// form: base prefix stripped, leading and trailing slash guaranteed.
func (j *pathJail) projectIntoCwd(hostPath string) string {
	virtual := strings.TrimPrefix(hostPath, j.base)
	if virtual == "" {
		virtual = "/"
	}

	if !strings.HasSuffix(virtual, "/") {
		virtual += "/"
	}

	return virtual
}
