package tools

import (
	"context"
	"strings"
)

// GetResourcesName is the function name the model calls for health records.
const GetResourcesName = "get_resources"

// SystemPrompt frames the assistant as a patient-facing health helper.
const SystemPrompt = `You are an LLM-powered health assistant for patients. You help patients understand their health records, medical history, and answer health-related questions based on their FHIR data.

When a user asks about their health information, use the get_resources tool to retrieve the relevant FHIR resources. Then, explain the information in simple, patient-friendly language.

Be empathetic, clear, and helpful. If you don't have enough information to answer a question, say so honestly.`

// GetResources returns the get_resources tool backed by the canned record
// summaries.
func GetResources() Tool {
	ids := ResourceIDs()
	enum := make([]any, len(ids))
	for i, id := range ids {
		enum[i] = id
	}

	return Tool{
		Name:        GetResourcesName,
		Description: "Call this function to request the relevant FHIR health records based on the user's question and conversation context using their FHIR resource identifiers.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"resourceCategories": map[string]any{
					"type":        "array",
					"description": "Pass in one or more identifiers that you want to access.",
					"items": map[string]any{
						"type": "string",
						"enum": enum,
					},
				},
			},
			"required": []any{"resourceCategories"},
		},
		Handler: getResources,
	}
}

// NewFHIRRegistry returns a registry with get_resources registered.
func NewFHIRRegistry() *Registry {
	return NewRegistry(GetResources())
}

// ResourceIDs lists the identifiers get_resources can serve.
func ResourceIDs() []string {
	ids := make([]string, len(resourceSummaries))
	for i, r := range resourceSummaries {
		ids[i] = r.ID
	}
	return ids
}

func lookupResource(id string) (string, bool) {
	for _, r := range resourceSummaries {
		if r.ID == id {
			return r.Summary, true
		}
	}
	return "", false
}

func getResources(_ context.Context, args map[string]any) string {
	requested, ok := args["resourceCategories"].([]any)
	if !ok {
		return "No resources requested."
	}

	results := make([]string, 0, len(requested))
	for _, item := range requested {
		id, _ := item.(string)
		if summary, found := lookupResource(id); found {
			results = append(results, summary)
			continue
		}
		results = append(results, "No data available for "+id)
	}
	return strings.Join(results, "\n\n")
}
