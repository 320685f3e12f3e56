package workflow

import (
	"fmt"
	"strings"

	"draftsmith/internal/queue"
)

// Stage names key StageResults; they align one-to-one with the enhancement
// message kinds and the non-terminal statuses.
const (
	StageResearch  = "research"
	StageStructure = "structure"
	StageFactcheck = "factcheck"
	StageFinalize  = "finalize"
)

// statusForKind maps an enhancement message kind to the status a workflow
// must hold for that message to be current.
var statusForKind = map[queue.Kind]Status{
	queue.KindResearch:  StatusResearching,
	queue.KindStructure: StatusStructuring,
	queue.KindFactcheck: StatusFactchecking,
	queue.KindFinalize:  StatusFinalizing,
}

var kindForStatus = map[Status]queue.Kind{
	StatusResearching:  queue.KindResearch,
	StatusStructuring:  queue.KindStructure,
	StatusFactchecking: queue.KindFactcheck,
	StatusFinalizing:   queue.KindFinalize,
}

var stageForKind = map[queue.Kind]string{
	queue.KindResearch:  StageResearch,
	queue.KindStructure: StageStructure,
	queue.KindFactcheck: StageFactcheck,
	queue.KindFinalize:  StageFinalize,
}

// EnhancementKind reports whether a kind belongs to the enhancement pipeline
// (as opposed to publish-side kinds the dispatcher routes elsewhere).
func EnhancementKind(kind queue.Kind) bool {
	_, ok := statusForKind[kind]
	return ok
}

const (
	researchSystemPrompt = "You are a research assistant for a technology publication. " +
		"Collect the key facts, context, and primary claims about the given item. " +
		"Answer with concise bullet points."
	structureSystemPrompt = "You are an editor outlining an article. Using the research notes, " +
		"produce a section-by-section outline with a working angle for the piece."
	factcheckSystemPrompt = "You are a fact checker. Review the outline against the research notes, " +
		"flag every claim that needs verification, and correct anything inconsistent."
	finalizeSystemPrompt = "You are a staff writer. Turn the outline and fact-check notes into a " +
		"complete draft in plain prose, separated into paragraphs."
)

// stagePrompt builds the oracle prompts for a stage from the immutable input
// and the prior stages' results already present on the state.
func stagePrompt(stage string, state *State) (system, user string, err error) {
	input := state.Input
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\nURL: %s\n", input.Title, input.URL)
	if input.Description != "" {
		fmt.Fprintf(&b, "Summary: %s\n", input.Description)
	}
	if input.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", input.Category)
	}
	if len(input.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(input.Tags, ", "))
	}

	appendResult := func(label, name string) error {
		payload, ok := state.Result(name)
		if !ok {
			return fmt.Errorf("stage %s requires completed %s result", stage, name)
		}
		fmt.Fprintf(&b, "\n%s:\n%s\n", label, payload)
		return nil
	}

	switch stage {
	case StageResearch:
		return researchSystemPrompt, b.String(), nil
	case StageStructure:
		if err := appendResult("Research notes", StageResearch); err != nil {
			return "", "", err
		}
		return structureSystemPrompt, b.String(), nil
	case StageFactcheck:
		if err := appendResult("Research notes", StageResearch); err != nil {
			return "", "", err
		}
		if err := appendResult("Outline", StageStructure); err != nil {
			return "", "", err
		}
		return factcheckSystemPrompt, b.String(), nil
	case StageFinalize:
		if err := appendResult("Outline", StageStructure); err != nil {
			return "", "", err
		}
		if err := appendResult("Fact-check notes", StageFactcheck); err != nil {
			return "", "", err
		}
		return finalizeSystemPrompt, b.String(), nil
	default:
		return "", "", fmt.Errorf("unknown stage %q", stage)
	}
}

// stageTemperature keeps early stages factual and lets the writing stage
// loosen up slightly.
func stageTemperature(stage string) float64 {
	if stage == StageFinalize {
		return 0.7
	}
	return 0.3
}
