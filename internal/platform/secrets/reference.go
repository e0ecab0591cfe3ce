package secrets

import (
	"fmt"
	"net/url"
	"strings"
)

const latestVersion = "latest"

// reference is a parsed secret://NAME[?version=V&project=P] URI. The sm:// prefix is accepted as
// an alias.
type reference struct {
	// canonical is the URI without query, used for pins, cache keys, and the local file.
	canonical string
	name      string
	version   string
	project   string
}

func parseReference(raw string) (reference, error) {
	raw = strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(raw, "sm://"); ok {
		raw = "secret://" + rest
	}
	u, err := url.Parse(raw)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", raw, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported reference %q", raw)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return reference{}, fmt.Errorf("secrets: reference %q has no secret name", raw)
	}
	q := u.Query()
	return reference{
		canonical: "secret://" + name,
		name:      name,
		version:   strings.TrimSpace(q.Get("version")),
		project:   strings.TrimSpace(q.Get("project")),
	}, nil
}

func (r reference) resource(project, version string) string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, r.name, version)
}

func cacheKey(canonical, version string) string {
	return canonical + "@" + version
}
