package session

// Policy decides which authenticated users may mutate the queue
type Policy struct {
	allowed map[string]bool
	admins  map[string]bool
}

// NewPolicy builds the access policy from the configured id lists
func NewPolicy(allowedIDs, adminIDs []string) *Policy {
	policy := &Policy{
		allowed: make(map[string]bool, len(allowedIDs)),
		admins:  make(map[string]bool, len(adminIDs)),
	}
	for _, id := range allowedIDs {
		policy.allowed[id] = true
	}
	for _, id := range adminIDs {
		policy.admins[id] = true
	}
	return policy
}

// CanQueue reports whether the user may enqueue, reorder, pause and skip
// An empty allow list admits any authenticated user
func (p *Policy) CanQueue(id string) bool {
	if id == "" {
		return false
	}
	if p.admins[id] {
		return true
	}
	if len(p.allowed) == 0 {
		return true
	}
	return p.allowed[id]
}

// IsAdmin reports whether the user may read the playback journal
func (p *Policy) IsAdmin(id string) bool {
	if id == "" {
		return false
	}
	return p.admins[id]
}
