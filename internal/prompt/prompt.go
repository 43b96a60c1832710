// Package prompt loads the prompt handed to the agent.
package prompt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// UserRequestFile is the name of the optional file, next to the prompt
// file, that carries the user's request as a separate message segment.
const UserRequestFile = "claude-user-request.txt"

// Input is the prompt sent to the agent: either a single text, or two
// ordered segments (instructions, then the user request).
type Input struct {
	Text     string
	Segments []string
}

// MultiPart reports whether the input is sent as separate segments.
func (in *Input) MultiPart() bool {
	return len(in.Segments) > 0
}

// Load reads the prompt at path. When UserRequestFile exists in the same
// directory, the result has two segments: the prompt file content first,
// so that slash commands in the user request are still detected after
// the instructions, and the user request second.
func Load(path string) (*Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompt file: %w", err)
	}

	requestPath := filepath.Join(filepath.Dir(path), UserRequestFile)
	request, err := os.ReadFile(requestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Input{Text: string(data)}, nil
		}
		return nil, fmt.Errorf("reading user request file: %w", err)
	}

	return &Input{Segments: []string{string(data), string(request)}}, nil
}

type textBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type userMessage struct {
	Type    string `json:"type"`
	Message struct {
		Role    string      `json:"role"`
		Content []textBlock `json:"content"`
	} `json:"message"`
}

// Message encodes the input as a single stream-json user message with
// one text block per segment. A plain input yields a single block.
func (in *Input) Message() ([]byte, error) {
	segments := in.Segments
	if !in.MultiPart() {
		segments = []string{in.Text}
	}

	msg := userMessage{Type: "user"}
	msg.Message.Role = "user"
	for _, s := range segments {
		msg.Message.Content = append(msg.Message.Content, textBlock{Type: "text", Text: s})
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding prompt message: %w", err)
	}
	return data, nil
}
