package generator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ibeckermayer/replyscout/internal/types"
)

// Length limits in characters
const (
	MinChars = 150
	MaxChars = 280
)

var genericOpeners = []string{
	"great post", "thanks for sharing", "interesting perspective",
	"i agree with", "this is important", "well said", "totally agree",
	"love this", "so true", "100%",
}

var domainTerms = []string{
	"RLHF", "DPO", "PPO", "distillation", "agent", "reasoning", "post-training",
	"alignment", "tool use", "orchestration", "memory", "RAG", "embeddings",
	"context", "inference", "fine-tuning", "transformer", "attention", "token",
	"model", "training", "dataset", "benchmark", "evaluation", "prompt",
	"dashboard", "SQL", "analytics", "pipeline", "vector", "retrieval",
	"markdown", "parsing", "chunking", "LLM", "API", "latency", "throughput",
	"accuracy", "precision", "recall", "loss", "gradient", "weight",
}

// CharCount returns the length of text in characters.
func CharCount(text string) int {
	return utf8.RuneCountInString(text)
}

// Validate returns the advisory issues for a generated reply. An empty
// result means the text passed every check.
func Validate(text string) []types.Issue {
	var issues []types.Issue

	n := CharCount(text)
	if n < MinChars {
		issues = append(issues, types.Issue{
			Code:    types.IssueTooShort,
			Message: fmt.Sprintf("too short (%d chars, target 200-280)", n),
		})
	}
	if n > MaxChars {
		issues = append(issues, types.Issue{
			Code:    types.IssueOverLimit,
			Message: fmt.Sprintf("over the %d char limit (%d chars)", MaxChars, n),
		})
	}

	lower := strings.ToLower(text)
	for _, phrase := range genericOpeners {
		if strings.Contains(lower, phrase) {
			issues = append(issues, types.Issue{
				Code:    types.IssueGenericOpener,
				Message: fmt.Sprintf("generic opener: %q", phrase),
			})
			break
		}
	}

	if !hasDomainTerm(lower) {
		issues = append(issues, types.Issue{
			Code:    types.IssueNoDomainTerms,
			Message: "no technical depth (no domain terms)",
		})
	}

	return issues
}

func hasDomainTerm(lower string) bool {
	for _, term := range domainTerms {
		if strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}
