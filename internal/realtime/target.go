package realtime

import "ridehail/internal/domain"

// BroadcastChannel is joined by every subscriber.
const BroadcastChannel = "broadcast"

// UserChannel is the private channel of a user.
func UserChannel(userID string) string { return "user:" + userID }

// RoleChannel is shared by all subscribers of a role.
func RoleChannel(role domain.Role) string { return "role:" + string(role) }

// Target selects the recipients of a publish.
type Target struct {
	Channels []string `json:"channels"`
}

// Broadcast targets every connected subscriber.
func Broadcast() Target {
	return Target{Channels: []string{BroadcastChannel}}
}

// To targets the given users. Empty ids are ignored.
func To(userIDs ...string) Target {
	t := Target{Channels: make([]string, 0, len(userIDs))}
	for _, id := range userIDs {
		if id != "" {
			t.Channels = append(t.Channels, UserChannel(id))
		}
	}
	return t
}
