package agent

import "context"

// Summarizer produces short natural-language summaries of agent output.
// It is an injected collaborator (the AI client); agents treat it as
// optional and degrade to raw output when it is nil or failing.
type Summarizer interface {
	Summarize(ctx context.Context, subject, content string) (string, error)
}
