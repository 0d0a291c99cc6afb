package backend

import (
	"context"
	"errors"
	"time"

	openai "github.com/openai/openai-go/v3"
)

// OpenAI serves chat and triage straight from an OpenAI chat model.
type OpenAI struct {
	llmBackend

	client openai.Client
	model  string
}

var _ Backend = (*OpenAI)(nil)

func NewOpenAI(client openai.Client, model string) *OpenAI {
	if model == "" {
		model = string(openai.ChatModelGPT5Nano)
	}

	o := &OpenAI{client: client, model: model}
	o.llmBackend = llmBackend{complete: o.completion, now: time.Now}
	return o
}

func (o *OpenAI) completion(ctx context.Context, system, user string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model: openai.ChatModel(o.model),
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", errors.New("empty message content")
	}
	return content, nil
}
