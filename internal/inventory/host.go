package inventory

import (
	"fmt"
	"regexp"
)

// HostIdentity names one provisioning target inside the
// projects/<project>/zones/<zone>/instances/<name> namespace hierarchy.
// It is an immutable value type; the canonical String form is the key used
// for deduplication, state-store entries, and logging.
type HostIdentity struct {
	Project string
	Zone    string
	Name    string
}

var hostIdentityRe = regexp.MustCompile(`^projects/([\w-]+)/zones/([\w-]+)/instances/([\w-]+)$`)

// ParseHostIdentity parses a canonical host identifier string.
func ParseHostIdentity(s string) (HostIdentity, error) {
	m := hostIdentityRe.FindStringSubmatch(s)
	if m == nil {
		return HostIdentity{}, fmt.Errorf(
			"host %q: not of the form projects/<project>/zones/<zone>/instances/<name>", s)
	}
	return HostIdentity{Project: m[1], Zone: m[2], Name: m[3]}, nil
}

// String returns the canonical host identifier.
func (h HostIdentity) String() string {
	return fmt.Sprintf("projects/%s/zones/%s/instances/%s", h.Project, h.Zone, h.Name)
}

// Filename returns a filesystem-safe name for this host's log file.
func (h HostIdentity) Filename() string {
	return fmt.Sprintf("%s_%s_%s", h.Project, h.Zone, h.Name)
}
