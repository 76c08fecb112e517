package blueprint

import (
	"fmt"
	"strings"

	"github.com/alexisbeaulieu97/loom/internal/diagnostics"
)

// validatePrefix checks a nested blueprint's path prefix. Problems are
// reported against loc; the return value tells the reader whether the
// prefix is usable.
func validatePrefix(prefix string, loc diagnostics.Location, sink diagnostics.Sink) bool {
	switch {
	case prefix == "":
		reportBlueprint(sink, loc, "the path prefix of a nested blueprint cannot be empty")
		return false
	case !strings.HasPrefix(prefix, "/"):
		reportBlueprint(sink, loc, fmt.Sprintf("the path prefix %q must begin with a forward slash", prefix))
		return false
	case strings.HasSuffix(prefix, "/"):
		reportBlueprint(sink, loc, fmt.Sprintf("the path prefix %q cannot end with a forward slash", prefix))
		return false
	}
	return true
}

// validateRoutePath checks a route's registered path. The empty path is a
// valid no-op wildcard.
func validateRoutePath(path string, loc diagnostics.Location, sink diagnostics.Sink) bool {
	if path == "" {
		return true
	}
	if !strings.HasPrefix(path, "/") {
		reportBlueprint(sink, loc, fmt.Sprintf("the route path %q must either be empty or begin with a forward slash", path))
		return false
	}
	return true
}

// validateDomain checks a domain guard: dot-separated DNS labels, with an
// optional leading "*." wildcard.
func validateDomain(domain string, loc diagnostics.Location, sink diagnostics.Sink) bool {
	rest := strings.TrimPrefix(domain, "*.")
	if rest == "" || strings.HasPrefix(rest, ".") || strings.HasSuffix(rest, ".") {
		reportBlueprint(sink, loc, fmt.Sprintf("%q is not a valid domain guard", domain))
		return false
	}
	for _, label := range strings.Split(rest, ".") {
		if !validDomainLabel(label) {
			reportBlueprint(sink, loc, fmt.Sprintf("%q is not a valid domain guard", domain))
			return false
		}
	}
	return true
}

func validDomainLabel(label string) bool {
	if label == "" || strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
		return false
	}
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

func reportBlueprint(sink diagnostics.Sink, loc diagnostics.Location, msg string) {
	sink.Report(diagnostics.Diagnostic{
		Code:     diagnostics.CodeBlueprintValidation,
		Severity: diagnostics.SeverityError,
		Message:  msg,
		Location: loc,
	})
}
