package leaderboard

// isAuthorized decides whether a user may run an administrative
// configuration command in a guild.
//
// Access is allowed when:
//   - the user is the guild owner
//   - no authorized roles are configured yet (fail-open, so a freshly
//     installed guild can be bootstrapped by anyone - see /configure)
//   - the user holds at least one configured role
//
// Pure function of its inputs; no side effects.
func isAuthorized(
	userID string,
	userRoleIDs []string,
	configRoles []ConfigRole,
	guildOwnerID string,
) bool {
	if guildOwnerID != "" && userID == guildOwnerID {
		return true
	}

	if len(configRoles) == 0 {
		return true
	}

	configured := make(map[string]struct{}, len(configRoles))
	for _, r := range configRoles {
		configured[r.ID] = struct{}{}
	}
	for _, id := range userRoleIDs {
		if _, ok := configured[id]; ok {
			return true
		}
	}

	return false
}
