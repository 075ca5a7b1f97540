package agent

import "github.com/haasonsaas/concierge/pkg/models"

// SanitizeHistory drops messages that carry unfinished tool invocations
// before the history is projected for inference. A tool part still
// streaming its input, or waiting on a user decision with no output, marks
// the whole message as unfinished; forwarding it would hand the model a
// call with no outcome.
//
// Decided calls (approval sentinels) and completed calls pass through for
// the resolver. The input slice is never mutated; surviving messages are
// shared, not copied. Filtering is silent.
func SanitizeHistory(msgs []models.Message) []models.Message {
	if len(msgs) == 0 {
		return msgs
	}

	kept := make([]models.Message, 0, len(msgs))
	for i := range msgs {
		if msgs[i].HasPendingTool() {
			continue
		}
		kept = append(kept, msgs[i])
	}
	return kept
}
