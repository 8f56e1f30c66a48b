package server

// isValidWorkspaceID enforces the id grammar workspace ids are generated
// under: [A-Za-z0-9_-]{1,100}. Rejecting anything else here, before it
// reaches the workspace manager, keeps a malformed id from ever being used
// to build a filesystem path.
func isValidWorkspaceID(id string) bool {
	if len(id) == 0 || len(id) > 100 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}
