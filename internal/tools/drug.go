package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/medicos-health/medigate/internal/domain/tool"
	"github.com/medicos-health/medigate/internal/port/outbound"
)

const drugNormalizeSystemPrompt = `You are a drug name normalizer. Convert drug names to their normalized form.
Prefer generic names over brand names. Handle common variations and misspellings.

Return JSON with:
- "normalized": array of objects, each with:
  - "original": original drug name
  - "normalized": normalized name (generic preferred)
  - "type": "generic" or "brand"
  - "confidence": confidence score 0-1
  - "alternatives": array of alternative names if applicable`

const drugRulesSystemPrompt = `You are a drug safety rule checker. Check drug-specific rules:
1. Age restrictions (pediatric vs adult)
2. Contraindications based on conditions
3. Dosage limits (maximum safe doses)
4. Pregnancy/lactation warnings

Return JSON with:
- "allowed": boolean indicating if drug is generally safe
- "warnings": array of warnings, each with:
  - "severity": "error", "warning", or "info"
  - "rule": rule name
  - "message": description
- "recommendations": array of recommendations`

func registerDrugTools(reg *tool.Registry, deps Deps) error {
	tools := []tool.Descriptor{
		{
			Name:        "drug.normalize",
			Description: "Normalize drug names (brand to generic, common variations).",
			Sensitivity: tool.Sensitive,
			InputSchema: objectSchema(nil, map[string]interface{}{
				"drug_name":  strProp("Single drug name to normalize."),
				"drug_names": arrProp("Batch of drug names to normalize."),
			}),
			Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
				drugName := optString(args, "drug_name", "")
				var names []string
				for _, raw := range optSlice(args, "drug_names") {
					if s, ok := raw.(string); ok {
						names = append(names, s)
					}
				}
				if drugName == "" && len(names) == 0 {
					return nil, fmt.Errorf("either 'drug_name' or 'drug_names' must be provided")
				}
				if drugName != "" {
					names = []string{drugName}
				}

				result, err := deps.Completer.CompleteJSON(ctx, outbound.CompletionRequest{
					SystemPrompt: drugNormalizeSystemPrompt,
					UserPrompt: fmt.Sprintf("Normalize these drug names:\n\n%s\n\nReturn normalized forms, preferring generic names.",
						strings.Join(names, ", ")),
				})
				if err != nil {
					return nil, fmt.Errorf("drug normalization: %w", err)
				}

				normalized, _ := result["normalized"].([]interface{})
				if drugName != "" {
					if len(normalized) > 0 {
						if single, ok := normalized[0].(map[string]interface{}); ok {
							return single, nil
						}
					}
					return map[string]interface{}{"original": drugName, "normalized": drugName}, nil
				}
				return map[string]interface{}{"normalized": normalized}, nil
			},
		},
		{
			Name:        "drug.rules",
			Description: "Check drug-specific rules (age constraints, contraindications, dosage limits).",
			Sensitivity: tool.Sensitive,
			InputSchema: objectSchema([]string{"drug_name"}, map[string]interface{}{
				"drug_name":          strProp(""),
				"dosage":             strProp(""),
				"patient_age":        intProp(""),
				"patient_conditions": arrProp("Known patient conditions."),
			}),
			Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
				drugName, err := stringArg(args, "drug_name")
				if err != nil {
					return nil, err
				}

				var sb strings.Builder
				fmt.Fprintf(&sb, "Drug: %s", drugName)
				if dosage := optString(args, "dosage", ""); dosage != "" {
					fmt.Fprintf(&sb, ", Dosage: %s", dosage)
				}
				if age := optInt(args, "patient_age", 0); age > 0 {
					fmt.Fprintf(&sb, ", Patient age: %d", age)
				}
				if conditions := optSlice(args, "patient_conditions"); len(conditions) > 0 {
					parts := make([]string, 0, len(conditions))
					for _, c := range conditions {
						parts = append(parts, fmt.Sprint(c))
					}
					fmt.Fprintf(&sb, ", Conditions: %s", strings.Join(parts, ", "))
				}

				result, err := deps.Completer.CompleteJSON(ctx, outbound.CompletionRequest{
					SystemPrompt: drugRulesSystemPrompt,
					UserPrompt:   fmt.Sprintf("Check drug rules for:\n\n%s\n\nBe thorough and flag any safety concerns.", sb.String()),
				})
				if err != nil {
					return nil, fmt.Errorf("drug rules check: %w", err)
				}

				allowed := true
				if a, ok := result["allowed"].(bool); ok {
					allowed = a
				}
				return map[string]interface{}{
					"drug_name":       drugName,
					"allowed":         allowed,
					"warnings":        result["warnings"],
					"recommendations": result["recommendations"],
				}, nil
			},
		},
	}

	for _, desc := range tools {
		if err := reg.Register(desc); err != nil {
			return err
		}
	}
	return nil
}
