// Package prompter turns a spoken description into a polished MidJourney
// prompt through a chat completion API.
package prompter

import (
	"context"
	"fmt"
	"os"
)

// systemInstruction frames every synthesis request. The transcript goes
// in as a user message built from userPromptTemplate.
const systemInstruction = "You are a helpful assistant that converts spoken " +
	"descriptions into detailed MidJourney prompts. Focus on visual details " +
	"and artistic style."

const userPromptTemplate = "Convert this description into a detailed MidJourney prompt: %s"

type Prompter interface {
	Name() string
	Synthesize(ctx context.Context, spokenText string) (string, error)
}

// New picks a provider from the environment: GROQ_API_KEY first, then
// OPENAI_API_KEY.
func New() (Prompter, error) {
	if k := os.Getenv("GROQ_API_KEY"); k != "" {
		return NewGroq(k), nil
	}
	if k := os.Getenv("OPENAI_API_KEY"); k != "" {
		return NewOpenAI(k), nil
	}
	return nil, fmt.Errorf("set GROQ_API_KEY or OPENAI_API_KEY environment variable")
}
