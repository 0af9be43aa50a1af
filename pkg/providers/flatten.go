package providers

const directReplyMarker = "\n\n# Directly reply to this message:\n"

// Flatten prepares a conversation for backends without per-message names
// or strict role alternation. Names are dropped and consecutive entries
// with the same role are merged with a blank line. The user entry that
// closes a merged run of user entries is introduced as the message to
// reply to. An assistant entry directly after the system entry is
// dropped so the first turn is the user's.
func Flatten(msgs []Message) []Message {
	merged := make([]Message, 0, len(msgs))
	for i, cur := range msgs {
		cur.Name = ""
		if n := len(merged); n > 0 && merged[n-1].Role == cur.Role {
			last := &merged[n-1]
			if cur.Role == RoleUser && (i == len(msgs)-1 || msgs[i+1].Role != RoleUser) {
				last.Content += directReplyMarker + cur.Content
			} else {
				last.Content += "\n\n" + cur.Content
			}
			continue
		}
		merged = append(merged, cur)
	}

	if len(merged) > 1 && merged[0].Role == RoleSystem && merged[1].Role == RoleAssistant {
		merged = append(merged[:1], merged[2:]...)
	}
	return merged
}
