package leaderboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAuthorized(t *testing.T) {
	adminRoles := []ConfigRole{
		{ID: "100", Name: "admins"},
		{ID: "200", Name: "mods"},
	}

	tests := []struct {
		name         string
		userID       string
		userRoleIDs  []string
		configRoles  []ConfigRole
		guildOwnerID string
		expected     bool
	}{
		{
			name:         "guild owner always allowed",
			userID:       "owner",
			guildOwnerID: "owner",
			configRoles:  adminRoles,
			expected:     true,
		},
		{
			name:        "no roles configured fails open",
			userID:      "someone",
			userRoleIDs: []string{"999"},
			expected:    true,
		},
		{
			name:         "matching role allowed",
			userID:       "someone",
			userRoleIDs:  []string{"999", "200"},
			configRoles:  adminRoles,
			guildOwnerID: "owner",
			expected:     true,
		},
		{
			name:         "no matching role denied",
			userID:       "someone",
			userRoleIDs:  []string{"999"},
			configRoles:  adminRoles,
			guildOwnerID: "owner",
			expected:     false,
		},
		{
			name:         "no roles at all denied",
			userID:       "someone",
			configRoles:  adminRoles,
			guildOwnerID: "owner",
			expected:     false,
		},
		{
			name:        "unknown owner falls back to roles",
			userID:      "someone",
			userRoleIDs: []string{"100"},
			configRoles: adminRoles,
			expected:    true,
		},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				assert.Equal(
					t,
					tt.expected,
					isAuthorized(
						tt.userID,
						tt.userRoleIDs,
						tt.configRoles,
						tt.guildOwnerID,
					),
				)
			},
		)
	}
}
