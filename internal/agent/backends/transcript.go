package backends

import (
	"github.com/gosuda/chorus/internal/domain"
)

// turn is a provider-neutral chat message.
type turn struct {
	assistant bool
	text      string
}

// transcript renders the shared conversation from the point of view of
// speaker. The speaker's own earlier messages become assistant turns;
// everything else is a user turn, prefixed with who said it.
func transcript(conv []*domain.Message, speaker *domain.AgentProfile) []turn {
	out := make([]turn, 0, len(conv))
	for _, m := range conv {
		switch {
		case m.Role == domain.RoleAgent && m.AgentID != nil && speaker != nil && *m.AgentID == speaker.ID:
			out = append(out, turn{assistant: true, text: m.Content})
		case m.Role == domain.RoleUser:
			out = append(out, turn{text: m.Content})
		default:
			out = append(out, turn{text: "[" + m.Speaker() + "] " + m.Content})
		}
	}
	if len(out) == 0 || out[len(out)-1].assistant {
		// Both APIs expect the last turn to come from the user.
		out = append(out, turn{text: "Continue."})
	}
	return out
}
