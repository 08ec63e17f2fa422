package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/medicos-health/medigate/internal/domain/tool"
	"github.com/medicos-health/medigate/internal/port/outbound"
)

// prescriptionAbbreviations maps common prescription shorthand to plain
// language. Unknown abbreviations pass through unchanged.
var prescriptionAbbreviations = map[string]string{
	"BID": "twice daily",
	"TID": "three times daily",
	"QID": "four times daily",
	"QD":  "once daily",
	"QOD": "every other day",
	"PRN": "as needed",
	"AC":  "before meals",
	"PC":  "after meals",
	"HS":  "at bedtime",
	"PO":  "by mouth",
	"IM":  "intramuscular",
	"IV":  "intravenous",
	"SC":  "subcutaneous",
	"mg":  "milligram",
	"g":   "gram",
	"ml":  "milliliter",
	"tab": "tablet",
	"cap": "capsule",
}

const rxParseSystemPrompt = `You are a medical prescription parser. Extract all medicines from prescription text.
Return a JSON object with:
- "medicines": array of objects, each with:
  - "name": drug name (generic preferred if known)
  - "strength": dosage strength (e.g., "500mg", "10ml")
  - "route": administration route (e.g., "oral", "IV", "topical")
  - "frequency": how often (e.g., "twice daily", "every 8 hours")
  - "duration": how long (e.g., "7 days", "until finished")
  - "instructions": any special instructions
  - "raw_text": the original text snippet for this medicine
- "warnings": array of any parsing warnings or ambiguities`

const rxValidateSystemPrompt = `You are a medical safety validator. Check prescription medicines for:
1. Dosage consistency (does strength match frequency?)
2. Potential drug interactions (advisory only - flag for review)
3. Common safety issues (e.g., duplicate medicines, conflicting schedules)
4. Missing critical information

Return JSON with:
- "validation_status": "validated" or "needs_user_confirmation"
- "issues": array of validation issues, each with:
  - "severity": "error", "warning", or "info"
  - "medicine": medicine name or "general"
  - "message": description of the issue
- "recommendations": array of recommendations for user review`

func expandAbbreviations(text string) string {
	for abbrev, full := range prescriptionAbbreviations {
		text = strings.ReplaceAll(text, abbrev, full)
	}
	return text
}

func registerRxTools(reg *tool.Registry, deps Deps) error {
	tools := []tool.Descriptor{
		{
			Name:        "rx.parse_text",
			Description: "Parse OCR text into structured medicine data.",
			Sensitivity: tool.Sensitive,
			InputSchema: objectSchema([]string{"prescription_id"}, map[string]interface{}{
				"prescription_id": strProp(""),
				"ocr_text":        strProp("Optional OCR text. If omitted, reads from prescription doc."),
			}),
			Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
				prescriptionID, err := stringArg(args, "prescription_id")
				if err != nil {
					return nil, err
				}
				ocrText := optString(args, "ocr_text", "")
				if ocrText == "" {
					prescription, err := deps.Store.Get(ctx, colPrescriptions, prescriptionID)
					if err != nil {
						return nil, fmt.Errorf("prescription %s not found", prescriptionID)
					}
					ocrText, _ = prescription["ocr_text"].(string)
				}
				if ocrText == "" {
					return nil, fmt.Errorf("no OCR text available, run ocr.extract_text first")
				}

				result, err := deps.Completer.CompleteJSON(ctx, outbound.CompletionRequest{
					SystemPrompt: rxParseSystemPrompt,
					UserPrompt: fmt.Sprintf("Parse this prescription text into structured medicines:\n\n%s\n\nBe precise and extract all medicines mentioned. If something is unclear, include it in warnings.",
						ocrText),
				})
				if err != nil {
					return nil, fmt.Errorf("prescription parsing: %w", err)
				}

				medicines := result["medicines"]
				warnings := result["warnings"]

				if err := deps.Store.Update(ctx, colPrescriptions, prescriptionID, map[string]interface{}{
					"parsed_medicines": medicines,
					"parsing_warnings": warnings,
					"status":           "parsed",
				}); err != nil {
					return nil, err
				}

				return map[string]interface{}{
					"prescription_id": prescriptionID,
					"medicines":       medicines,
					"warnings":        warnings,
				}, nil
			},
		},
		{
			Name:        "rx.expand_abbrev",
			Description: "Expand prescription abbreviations in text or medicine data.",
			Sensitivity: tool.Routine,
			InputSchema: objectSchema(nil, map[string]interface{}{
				"text":          strProp("Text with abbreviations to expand."),
				"medicine_data": arrProp("Array of medicine objects to expand abbreviations in."),
			}),
			Handler: func(_ context.Context, args map[string]interface{}) (map[string]interface{}, error) {
				text := optString(args, "text", "")
				medicineData := optSlice(args, "medicine_data")
				if text == "" && medicineData == nil {
					return nil, fmt.Errorf("either 'text' or 'medicine_data' must be provided")
				}

				expanded := map[string]interface{}{}
				if text != "" {
					expanded["text"] = expandAbbreviations(text)
				}
				if medicineData != nil {
					expandedMeds := make([]interface{}, 0, len(medicineData))
					for _, raw := range medicineData {
						med, ok := raw.(map[string]interface{})
						if !ok {
							expandedMeds = append(expandedMeds, raw)
							continue
						}
						out := make(map[string]interface{}, len(med))
						for k, v := range med {
							out[k] = v
						}
						if freq, ok := med["frequency"].(string); ok {
							out["frequency"] = expandAbbreviations(freq)
						}
						expandedMeds = append(expandedMeds, out)
					}
					expanded["medicine_data"] = expandedMeds
				}
				return expanded, nil
			},
		},
		{
			Name:        "rx.validate",
			Description: "Validate parsed medicines for safety and consistency.",
			Sensitivity: tool.Sensitive,
			InputSchema: objectSchema([]string{"prescription_id"}, map[string]interface{}{
				"prescription_id": strProp(""),
				"medicines":       arrProp("Optional medicines array. If omitted, reads from prescription doc."),
			}),
			Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
				prescriptionID, err := stringArg(args, "prescription_id")
				if err != nil {
					return nil, err
				}
				medicines := optSlice(args, "medicines")
				if medicines == nil {
					prescription, err := deps.Store.Get(ctx, colPrescriptions, prescriptionID)
					if err != nil {
						return nil, fmt.Errorf("prescription %s not found", prescriptionID)
					}
					medicines, _ = prescription["parsed_medicines"].([]interface{})
				}
				if len(medicines) == 0 {
					return nil, fmt.Errorf("no medicines to validate, run rx.parse_text first")
				}

				medicinesJSON, err := json.Marshal(medicines)
				if err != nil {
					return nil, fmt.Errorf("encode medicines: %w", err)
				}
				result, err := deps.Completer.CompleteJSON(ctx, outbound.CompletionRequest{
					SystemPrompt: rxValidateSystemPrompt,
					UserPrompt: fmt.Sprintf("Validate these medicines for safety:\n\n%s\n\nBe thorough but remember this is advisory only. Flag anything that needs user confirmation.",
						medicinesJSON),
				})
				if err != nil {
					return nil, fmt.Errorf("medicine validation: %w", err)
				}

				status := "needs_user_confirmation"
				if s, ok := result["validation_status"].(string); ok && s == "validated" {
					status = "validated"
				}

				if err := deps.Store.Update(ctx, colPrescriptions, prescriptionID, map[string]interface{}{
					"validation_status":          status,
					"validation_issues":          result["issues"],
					"validation_recommendations": result["recommendations"],
					"status":                     status,
				}); err != nil {
					return nil, err
				}

				return map[string]interface{}{
					"prescription_id":   prescriptionID,
					"validation_status": status,
					"issues":            result["issues"],
					"recommendations":   result["recommendations"],
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
