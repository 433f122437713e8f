// Package channel implements the pub/sub side of the pipeline: channel
// naming, subscription authorization and the websocket hub.
package channel

import "strings"

// Subscriber is the identity attempting to attach to a channel, with the
// roles the directory reported at subscription time.
type Subscriber struct {
	ID    string
	Roles []string
}

// Authorize decides whether the subscriber may attach to the named channel.
// It is evaluated on every attach; results are never cached across
// connections.
//
//	user:{id}   — only the user themselves
//	role:{name} — only holders of that role
func Authorize(sub Subscriber, channelName string) bool {
	kind, name, ok := strings.Cut(channelName, ":")
	if !ok || name == "" {
		return false
	}

	switch kind {
	case "user":
		return sub.ID == name
	case "role":
		for _, role := range sub.Roles {
			if role == name {
				return true
			}
		}
		return false
	}
	return false
}
