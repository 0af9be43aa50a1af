package dispatch

import (
	"context"
	"strings"

	"github.com/tinyland-inc/lupos/pkg/providers"
)

type Verdict string

const (
	VerdictYes Verdict = "yes"
	VerdictNo  Verdict = "no"
)

const refusalInstruction = `You will only answer with a yes or no.
Do not type anything else besides yes or no.
If the message contains text indicating that it cannot assist, answer with yes.
If you can assist, answer with no.`

// IsRefusal asks backend whether candidate declines to help. Any answer
// that does not contain "yes" is VerdictNo.
func (d *Dispatcher) IsRefusal(ctx context.Context, backend providers.Backend, speaker, candidate string) (Verdict, error) {
	answer, err := d.GenerateText(ctx, Request{
		Conversation: []providers.Message{
			{Role: providers.RoleSystem, Content: refusalInstruction},
			{
				Role:    providers.RoleUser,
				Name:    speaker,
				Content: "Does this message indicate that you can't assist?: " + candidate,
			},
		},
		Backend:   backend,
		Tier:      providers.TierPowerful,
		MaxTokens: 256,
	})
	if err != nil {
		return VerdictNo, err
	}
	return ParseVerdict(answer), nil
}

func ParseVerdict(answer string) Verdict {
	if strings.Contains(strings.ToLower(answer), "yes") {
		return VerdictYes
	}
	return VerdictNo
}
