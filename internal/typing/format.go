package typing

import (
	"fmt"
	"sort"
)

// Participant is the slice of a conversation member the formatter needs.
type Participant struct {
	UserID      string
	DisplayName string
}

// fallbackName stands in when a participant record has no usable name yet.
// Showing a placeholder beats hiding a typist.
const fallbackName = "Someone"

// ComputeDisplayText turns the raw typing set into the status line one viewer
// should see. Pure function: no store, no clock, no I/O.
//
// The viewer is never shown their own indicator, and user IDs that are no
// longer participants are dropped rather than rendered as ghosts. IDs are
// sorted before formatting so the same set always produces the same text,
// in particular which two names lead the "N others" form.
func ComputeDisplayText(typingUserIDs map[string]struct{}, viewerID string, participants []Participant) string {
	byID := make(map[string]Participant, len(participants))
	for _, p := range participants {
		byID[p.UserID] = p
	}

	ids := make([]string, 0, len(typingUserIDs))
	for id := range typingUserIDs {
		if id == viewerID {
			continue
		}
		if _, ok := byID[id]; !ok {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	names := make([]string, len(ids))
	for i, id := range ids {
		name := byID[id].DisplayName
		if name == "" {
			name = fallbackName
		}
		names[i] = name
	}

	switch len(names) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s is typing…", names[0])
	case 2:
		return fmt.Sprintf("%s and %s are typing…", names[0], names[1])
	case 3:
		return fmt.Sprintf("%s, %s, and %s are typing…", names[0], names[1], names[2])
	default:
		return fmt.Sprintf("%s, %s, and %d others are typing…", names[0], names[1], len(names)-2)
	}
}
