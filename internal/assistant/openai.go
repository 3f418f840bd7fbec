// Package assistant wraps the OpenAI API behind the summarizer, study helper,
// quiz generator, and speech synthesizer used by the rest of the service.
// A missing credential models an unavailable component, never a crash.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrNotConfigured is returned by operations that need a credential when none
// was supplied at startup.
var ErrNotConfigured = errors.New("openai key not configured")

const rewriteSystemPrompt = "Rewrite into a crisp 60-90 second spoken brief. Keep names, avoid fluff."

const askSystemPrompt = "You are a concise, evidence-aware clinical study assistant. " +
	"Answer directly in plain English. Include 1-3 key points. " +
	"If a topic is safety-critical or uncertain, say so."

const quizSystemPrompt = "You are a helpful study assistant. Keep questions factual."

// QuizQuestion is one generated retrieval question.
type QuizQuestion struct {
	Question    string   `json:"question"`
	Choices     []string `json:"choices,omitempty"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
	PageRef     string   `json:"page_ref,omitempty"`
}

// Client holds the OpenAI connection and the speech settings. A Client built
// without a key is still usable; every call returns ErrNotConfigured and the
// quiz generator serves its static fallback.
type Client struct {
	api      *openai.Client
	model    openai.ChatModel
	ttsModel string
	ttsVoice string
}

// New builds the client. An empty apiKey yields an unavailable client.
func New(apiKey, ttsModel, ttsVoice string) *Client {
	c := &Client{
		model:    openai.ChatModelGPT4oMini,
		ttsModel: ttsModel,
		ttsVoice: ttsVoice,
	}
	if apiKey != "" {
		api := openai.NewClient(option.WithAPIKey(apiKey))
		c.api = &api
	}
	return c
}

// Available reports whether a credential was configured.
func (c *Client) Available() bool {
	return c != nil && c.api != nil
}

// Rewrite turns the assembled report script into a short spoken brief. An
// empty model response is handed back as the original script.
func (c *Client) Rewrite(ctx context.Context, script string) (string, error) {
	if !c.Available() {
		return "", ErrNotConfigured
	}

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(rewriteSystemPrompt),
			openai.UserMessage(script),
		},
		Temperature: openai.Float(0.2),
		MaxTokens:   openai.Int(500),
	})
	if err != nil {
		return "", fmt.Errorf("rewrite: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("rewrite: no response")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return script, nil
	}
	return text, nil
}

// Ask answers a study question. Level and format hints are optional.
func (c *Client) Ask(ctx context.Context, question, level, format string) (string, error) {
	if !c.Available() {
		return "", ErrNotConfigured
	}

	parts := []string{question}
	if level != "" {
		parts = append(parts, fmt.Sprintf("Target level: %s.", level))
	}
	if format != "" {
		parts = append(parts, fmt.Sprintf("Preferred format: %s.", format))
	}

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(askSystemPrompt),
			openai.UserMessage(strings.Join(parts, "\n")),
		},
		Temperature: openai.Float(0.2),
		MaxTokens:   openai.Int(400),
	})
	if err != nil {
		return "", fmt.Errorf("ask: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("ask: no response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Quiz generates retrieval questions from study notes. Without a credential,
// or when the model's JSON cannot be parsed, a small static quiz is returned
// so the endpoint always produces something usable.
func (c *Client) Quiz(ctx context.Context, notes, difficulty string) ([]QuizQuestion, error) {
	if !c.Available() {
		return staticQuiz(), nil
	}

	prompt := fmt.Sprintf(`Create 6 retrieval questions (mix MCQ + short answers) from the notes below.
Return a JSON list with fields: question, choices(optional), answer, explanation, page_ref.
Difficulty: %s.
Notes:
%s`, difficulty, notes)

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(quizSystemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return nil, fmt.Errorf("quiz: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("quiz: no response")
	}

	var questions []QuizQuestion
	content := cleanJSONList(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &questions); err != nil || len(questions) == 0 {
		return []QuizQuestion{{
			Question: "What is photosynthesis?",
			Answer:   "Process converting light energy to chemical energy in plants.",
		}}, nil
	}
	return questions, nil
}

// Synthesize renders text to MP3 audio. Unlike the other operations, callers
// surface its failures to the client.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if !c.Available() {
		return nil, ErrNotConfigured
	}

	resp, err := c.api.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(c.ttsModel),
		Voice:          openai.AudioSpeechNewParamsVoice(c.ttsVoice),
		Input:          text,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech response: %w", err)
	}
	return audio, nil
}

func staticQuiz() []QuizQuestion {
	return []QuizQuestion{
		{
			Question:    "Name the process that converts glucose to ATP in the cytoplasm.",
			Answer:      "Glycolysis",
			Explanation: "First step of cellular respiration.",
		},
		{
			Question:    "Which law explains constant acceleration due to net force?",
			Choices:     []string{"Newton's 1st", "Newton's 2nd", "Newton's 3rd"},
			Answer:      "Newton's 2nd",
			Explanation: "F=ma.",
		},
	}
}

// cleanJSONList strips markdown fences and surrounding prose from a model
// response expected to contain a JSON array.
func cleanJSONList(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}
