package pipeline

import "strings"

// Per-mode system instructions. The pure-mode decline directive is
// always present, whether or not retrieval returned anything, so the
// model never fills gaps from its own knowledge.
const (
	pureInstructions = `You are a market research analyst. Answer using ONLY the research context provided.
Do not use outside knowledge. If the context does not contain the information needed to answer, say that the available research does not cover the question and decline to answer.`

	creativeInstructions = `You are a market research strategist. Use the research context provided as inspiration and grounding, but you may extrapolate, hypothesize, and propose ideas beyond it. Make clear when you are speculating.`

	hybridInstructions = `You are a market research analyst. Ground your answer in the research context wherever possible and mark those statements [grounded]. Where you extend beyond the context, mark the statement [inferred]. Never present an inferred statement as a research finding.`
)

// instructionsFor assembles the system prompt for a query: mode policy
// first, then any persona directives.
func instructionsFor(mode Mode, personaDirectives string) string {
	var base string
	switch mode {
	case ModeCreative:
		base = creativeInstructions
	case ModeHybrid:
		base = hybridInstructions
	default:
		base = pureInstructions
	}
	if personaDirectives == "" {
		return base
	}
	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\n")
	sb.WriteString(personaDirectives)
	return sb.String()
}
