package leaderboard

import (
	"strings"

	"github.com/google/uuid"
)

const (
	// maxSelectCandidates is the discord select-menu ceiling. A channel
	// with this many bound leaderboards is an operator error, not
	// something to silently truncate.
	maxSelectCandidates = 25

	// maxAutocompleteChoices caps leaderboard-name autocomplete results.
	maxAutocompleteChoices = 25

	// maxIdentityChoices caps identity autocomplete results.
	maxIdentityChoices = 20
)

// routeResult is the outcome of resolving a channel to its bound
// leaderboard(s).
type routeResult struct {
	// LeaderboardID is set when exactly one leaderboard matched.
	LeaderboardID uuid.UUID

	// Candidates holds all matches when more than one leaderboard lists
	// the channel; the caller must prompt the user to pick one.
	Candidates []ConfigLeaderboard
}

func (r routeResult) none() bool {
	return r.LeaderboardID == uuid.Nil && len(r.Candidates) == 0
}

func (r routeResult) ambiguous() bool {
	return len(r.Candidates) > 1
}

// routeChannel resolves which of a guild's linked leaderboards apply to
// a channel. A leaderboard matches when its channel set lists the
// channel; an empty channel set matches nothing.
func routeChannel(leaderboards []ConfigLeaderboard, channelID string) routeResult {
	var matched []ConfigLeaderboard
	for _, l := range leaderboards {
		for _, ch := range l.ChannelIDs {
			if ch == channelID {
				matched = append(matched, l)
				break
			}
		}
	}

	switch len(matched) {
	case 0:
		return routeResult{}
	case 1:
		return routeResult{LeaderboardID: matched[0].LeaderboardID}
	default:
		return routeResult{Candidates: matched}
	}
}

// filterLeaderboards returns leaderboards whose short name contains the
// prefix, case-insensitively, in input order, up to the autocomplete cap.
func filterLeaderboards(
	leaderboards []ConfigLeaderboard,
	current string,
) []ConfigLeaderboard {
	needle := strings.ToLower(current)
	var matched []ConfigLeaderboard
	for _, l := range leaderboards {
		if len(matched) >= maxAutocompleteChoices {
			break
		}
		if strings.Contains(strings.ToLower(l.ShortName), needle) {
			matched = append(matched, l)
		}
	}
	return matched
}

// filterIdentities returns identities whose name or identifier contains
// the prefix, case-insensitively, in input order, up to the identity cap.
func filterIdentities(identities []UserIdentity, current string) []UserIdentity {
	needle := strings.ToLower(current)
	var matched []UserIdentity
	for _, ident := range identities {
		if len(matched) >= maxIdentityChoices {
			break
		}
		if strings.Contains(strings.ToLower(ident.Name), needle) ||
			strings.Contains(strings.ToLower(ident.Identifier), needle) {
			matched = append(matched, ident)
		}
	}
	return matched
}
