package openaiprovider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/tinyland-inc/lupos/pkg/providers"
)

const defaultBaseURL = "https://api.openai.com/v1"

type Config struct {
	APIKey  string
	APIBase string
	Timeout time.Duration
	// Name labels errors; defaults to "openai".
	Name        string
	SpeechModel string
	SpeechVoice string
}

type Provider struct {
	client      openai.Client
	name        string
	speechModel string
	speechVoice string
}

func NewProvider(cfg Config, extra ...option.RequestOption) *Provider {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if base == "" {
		base = defaultBaseURL
	}
	opts := []option.RequestOption{
		option.WithBaseURL(base),
		option.WithMaxRetries(1),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	opts = append(opts, extra...)

	p := &Provider{
		client:      openai.NewClient(opts...),
		name:        cfg.Name,
		speechModel: cfg.SpeechModel,
		speechVoice: cfg.SpeechVoice,
	}
	if p.name == "" {
		p.name = "openai"
	}
	if p.speechModel == "" {
		p.speechModel = string(openai.SpeechModelTTS1)
	}
	if p.speechVoice == "" {
		p.speechVoice = string(openai.AudioSpeechNewParamsVoiceAlloy)
	}
	return p
}

func (p *Provider) Generate(ctx context.Context, req providers.TextRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: buildMessages(req.Messages),
		Model:    openai.ChatModel(req.Model),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", p.mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", p.name, providers.ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *Provider) Describe(ctx context.Context, imageURL, instruction, model string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(instruction),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: imageURL}),
			}),
		},
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", p.mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", p.name, providers.ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// Synthesize returns MP3 audio bytes.
func (p *Provider) Synthesize(ctx context.Context, text string) (providers.Voice, error) {
	resp, err := p.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(p.speechModel),
		Voice:          openai.AudioSpeechNewParamsVoice(p.speechVoice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return providers.Voice{}, p.mapError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return providers.Voice{}, providers.MapConnectionError(p.name, err)
	}
	if len(data) == 0 {
		return providers.Voice{}, fmt.Errorf("%s: %w", p.name, providers.ErrEmptyResponse)
	}
	return providers.Voice{Filename: "voice.mp3", Data: data}, nil
}

func buildMessages(msgs []providers.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case providers.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case providers.RoleUser:
			user := openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: openai.String(msg.Content)},
			}
			if msg.Name != "" {
				user.Name = openai.String(msg.Name)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfUser: &user})
		case providers.RoleAssistant:
			asst := openai.ChatCompletionAssistantMessageParam{
				Content: openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(msg.Content)},
			}
			if msg.Name != "" {
				asst.Name = openai.String(msg.Name)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		}
	}
	return out
}

func (p *Provider) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return providers.MapStatus(p.name, apiErr.StatusCode, apiErr.Error())
	}
	return providers.MapConnectionError(p.name, err)
}
