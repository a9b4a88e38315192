package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/litscreen/relevance-service/internal/domain"
)

// JSON format templates shown to the model. Built from the domain types so
// the templates cannot drift from the structs they are parsed into.
var (
	keySemanticsFormat = jsonFormat(domain.KeySemantics{
		Topics:   []string{},
		Entities: []string{},
		Keywords: []string{},
	})
	relevanceFormat = jsonFormat(domain.Relevance{})
)

// jsonFormat serializes a template value for inclusion in a prompt.
func jsonFormat(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// BuildSemanticsPrompt builds the prompt for key-semantics extraction.
func BuildSemanticsPrompt(content string) string {
	var sb strings.Builder

	sb.WriteString("Semantically analyze the content to extract its topics, entities, and keywords.\n\n")
	sb.WriteString("Content:\n")
	sb.WriteString(content)
	sb.WriteString("\n\nReturn the result in the following JSON format:\n")
	sb.WriteString(keySemanticsFormat)

	return sb.String()
}

// BuildRelevancePrompt builds the prompt for relevance estimation. contentType
// names what the content is (e.g., "article"), question is the research
// question, and definitions are the combined project and question definitions.
func BuildRelevancePrompt(content, contentType, question string, definitions []string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Analyze the following %s:\n", contentType))
	sb.WriteString("1. Estimate its relevance to the given question.\n")
	sb.WriteString("2. Assess whether it contributes to the question.\n")
	sb.WriteString("- Provide a relevance and contribution score between 0 and 1.\n")
	sb.WriteString("- It is relevant or contributing only if the score is above 0.7.\n")
	sb.WriteString("- Provide a reason for the relevance and contribution score.\n\n")

	sb.WriteString("Content:\n")
	sb.WriteString(content)
	sb.WriteString("\n\nQuestion:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nDefinitions:\n")
	sb.WriteString(strings.Join(definitions, "\n"))
	sb.WriteString("\n\nReturn the result in the following JSON format:\n")
	sb.WriteString(relevanceFormat)

	return sb.String()
}

// BuildRepairPrompt builds the prompt that asks the model to fix JSON that
// failed to parse into the target structure.
func BuildRepairPrompt(input, format string) string {
	var sb strings.Builder

	sb.WriteString("Fix the JSON so it can be deserialized into the target object.\n\n")
	sb.WriteString("Input JSON object:\n")
	sb.WriteString(input)
	sb.WriteString("\n\nReturn the fixed JSON in the following format:\n")
	sb.WriteString(format)

	return sb.String()
}
