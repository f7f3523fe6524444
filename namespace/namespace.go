package namespace

import "strings"

// Namespace is one of the role partitions used to keep simultaneous sessions
// from the same browser isolated from each other.
type Namespace string

const (
	User     Namespace = "user"     // Consumer accounts
	Agency   Namespace = "agency"   // Agency / business accounts
	Employee Namespace = "employee" // Staff working for an agency
	Admin    Namespace = "admin"    // Platform administrators (is_staff or is_superuser)
)

// All lists every namespace in a stable order.
var All = []Namespace{User, Agency, Employee, Admin}

func (n Namespace) String() string {
	return string(n)
}

// Valid reports whether n is one of the four known namespaces.
func (n Namespace) Valid() bool {
	switch n {
	case User, Agency, Employee, Admin:
		return true
	}
	return false
}

// Parse matches s exactly (ignoring case and surrounding space) against the known namespaces.
func Parse(s string) (Namespace, bool) {
	n := Namespace(strings.ToLower(strings.TrimSpace(s)))
	if !n.Valid() {
		return "", false
	}
	return n, true
}

// FromAlias maps a loosely specified role or namespace name onto a namespace.
// Anything starting with "agency" is agency, anything starting with "employee"
// is employee, everything else falls back to user. Admin is never produced.
func FromAlias(s string) Namespace {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(s, string(Agency)):
		return Agency
	case strings.HasPrefix(s, string(Employee)):
		return Employee
	default:
		return User
	}
}

// FromPath derives a namespace from a route path prefix. The boolean is false
// when the path carries no namespace prefix and user is only the fallback.
func FromPath(p string) (Namespace, bool) {
	switch {
	case hasSegmentPrefix(p, "/"+string(Agency)):
		return Agency, true
	case hasSegmentPrefix(p, "/"+string(Employee)):
		return Employee, true
	default:
		return User, false
	}
}

func hasSegmentPrefix(p, prefix string) bool {
	if !strings.HasPrefix(p, prefix) {
		return false
	}
	rest := p[len(prefix):]
	return rest == "" || rest[0] == '/' || rest[0] == '?'
}

// basePath is the route prefix owned by the namespace. User routes are unprefixed.
func (n Namespace) basePath() string {
	if n == User || n == "" {
		return ""
	}
	return "/" + string(n)
}

// DashboardPath is the landing route for a signed-in session of this namespace.
func (n Namespace) DashboardPath() string {
	return n.basePath() + "/dashboard"
}

// LoginPath is the login route for this namespace.
func (n Namespace) LoginPath() string {
	return n.basePath() + "/login"
}
