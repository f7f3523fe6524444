package storage

// Record is the full session state of one namespace.
// Empty strings and a nil Profile mean "absent".
type Record struct {
	Access  string
	Refresh string
	Role    string
	Profile *Profile
}

// Profile is the cached identity returned by the backend's /me endpoint.
// It is a read-through cache and never authoritative.
type Profile struct {
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Pincode  string `json:"pincode,omitempty"`
	Role     string `json:"role,omitempty"`
	Category string `json:"category,omitempty"`
}
