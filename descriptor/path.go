package descriptor

import (
	"strings"

	"github.com/goliatone/go-automate"
)

const (
	DefaultNamespace = "System"
	DefaultClass     = "Process"

	pathSep = "/"
)

// SplitPath splits an automate path such as "/ns1/ns2/Class/Instance".
// With hasInstance false the last segment is the class. Namespace and class
// are both required.
func SplitPath(path string, hasInstance bool) (namespace, class, instance string, err error) {
	parts := splitSegments(path)
	if hasInstance {
		if len(parts) == 0 {
			return "", "", "", invalidPath(path)
		}
		instance = parts[len(parts)-1]
		parts = parts[:len(parts)-1]
	}
	if len(parts) < 2 {
		return "", "", "", invalidPath(path)
	}
	class = parts[len(parts)-1]
	namespace = strings.Join(parts[:len(parts)-1], pathSep)
	return namespace, class, instance, nil
}

// JoinPath is the inverse of SplitPath.
func JoinPath(namespace, class, instance string) string {
	segments := make([]string, 0, 3)
	for _, s := range []string{namespace, class, instance} {
		if s = strings.Trim(s, pathSep); s != "" {
			segments = append(segments, s)
		}
	}
	return pathSep + strings.Join(segments, pathSep)
}

func splitSegments(path string) []string {
	raw := strings.Split(strings.TrimSpace(path), pathSep)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func invalidPath(path string) error {
	return automate.NewError(
		automate.ErrInvalidFqClassName,
		"cannot split "+path+" into namespace and class",
		nil,
		map[string]any{"path": path},
	)
}
