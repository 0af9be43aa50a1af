package responder

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tinyland-inc/lupos/pkg/chat"
	"github.com/tinyland-inc/lupos/pkg/dispatch"
	"github.com/tinyland-inc/lupos/pkg/logger"
	"github.com/tinyland-inc/lupos/pkg/providers"
)

const (
	combineInstruction = `You are given two prompts; an image and text prompt. Always combine both prompts into a single cohesive image description, while keeping the all details of both. Do not omit any details from either prompt, as this is the answer to the user's question. You will also make sure to answer any questions that are asked in the text prompt.

The description should be detailed, creative, and what you would see in an art gallery.

The description should include concise text in quotes that fits the theme of the image, and the text prompt. The text should be in quotes and should be a part of the image description.

Do not make self-referential comments or break the fourth wall.
Do not answer with a question.`

	combineRequestFormat = `Combine these the image and text prompts into a cohesive visual description, while keeping the all details.

Image prompt: %s

Text prompt: %s`

	moodInstruction = `You are an expert at telling if a conversation is positive, neutral or negative, but taking into account how your character would perceive it and react to it. You will only answer with a number between -10 to 10. -10 being the most negative, 0 being mostly neutral, and 10 being as positive as possible. The number you pick between -10 to 10 will depend on the tone of the conversation, and nothing else. You do not type anything else besides the number that indicates the tone of the conversation. Only a number between -10 to 10, nothing else. You only output a number, an integer, nothing else.`

	MoodMin = -10
	MoodMax = 10
)

var moodNumberRe = regexp.MustCompile(`-?\d+`)

// ImagePrompt merges the image prompt from assembly with the generated
// reply into one picture description. When the merged prompt reads as a
// refusal and the refusal check is on, the raw image prompt is used.
func (r *Responder) ImagePrompt(ctx context.Context, msg chat.Message, imagePrompt, textResponse string) (string, error) {
	speaker := msg.Author.NameNoSpaces()
	combined, err := r.gen.GenerateText(ctx, dispatch.Request{
		Conversation: []providers.Message{
			{Role: providers.RoleSystem, Content: combineInstruction},
			{Role: providers.RoleUser, Name: speaker, Content: fmt.Sprintf(combineRequestFormat, imagePrompt, textResponse)},
		},
		Backend:   r.imageBackend,
		Tier:      r.imageTier,
		MaxTokens: r.imageTokens,
	})
	if err != nil {
		return "", fmt.Errorf("combine image prompt: %w", err)
	}

	if r.refusalCheck && strings.TrimSpace(imagePrompt) != "" {
		verdict, err := r.gen.IsRefusal(ctx, r.imageBackend, speaker, combined)
		if err == nil && verdict == dispatch.VerdictYes {
			logger.InfoCF("responder", "Image prompt refused, using raw prompt", map[string]any{"combined": combined})
			return imagePrompt, nil
		}
	}
	if r.debug {
		logger.DebugCF("responder", "Combined image prompt", map[string]any{"prompt": combined})
	}
	return combined, nil
}

// Mood rates the tone of msg from MoodMin to MoodMax as the persona would
// perceive it.
func (r *Responder) Mood(ctx context.Context, msg chat.Message) (int, error) {
	system := strings.Join(nonEmpty(
		r.persona.BackstoryFor(msg.ServerID()),
		r.persona.Personality,
		moodInstruction,
	), "\n\n")
	answer, err := r.gen.GenerateText(ctx, dispatch.Request{
		Conversation: []providers.Message{
			{Role: providers.RoleSystem, Content: system},
			{Role: providers.RoleUser, Name: msg.Author.NameNoSpaces(), Content: msg.Content},
		},
		Backend:   r.backend,
		Tier:      providers.TierFast,
		MaxTokens: 3,
	})
	if err != nil {
		return 0, fmt.Errorf("mood: %w", err)
	}
	return ParseMood(answer)
}

// ParseMood extracts the first integer from answer, clamped to the mood range.
func ParseMood(answer string) (int, error) {
	m := moodNumberRe.FindString(answer)
	if m == "" {
		return 0, fmt.Errorf("mood: no number in %q", answer)
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("mood: %w", err)
	}
	return min(max(n, MoodMin), MoodMax), nil
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
