package tools

import (
	"context"
	"fmt"

	"github.com/medicos-health/medigate/internal/domain/tool"
	"github.com/medicos-health/medigate/internal/port/outbound"
)

const ocrSystemPrompt = `You are a medical OCR specialist. Extract all text from the prescription image.
Return a JSON object with:
- "text": the full extracted text
- "confidence": a number between 0 and 1 indicating your confidence
- "regions": array of objects with "text", "bbox" (bounding box coordinates), "confidence"
- "warnings": array of any warnings about unclear text or low confidence areas`

// reviewConfidenceThreshold flags OCR output for manual review below it.
const reviewConfidenceThreshold = 0.7

func registerOCRTools(reg *tool.Registry, deps Deps) error {
	return reg.Register(tool.Descriptor{
		Name:        "ocr.extract_text",
		Description: "Extract text from a prescription image using OCR.",
		Sensitivity: tool.Sensitive,
		InputSchema: objectSchema([]string{"file_path", "prescription_id"}, map[string]interface{}{
			"file_path":       strProp("Storage path or URL to the prescription image."),
			"prescription_id": strProp("Document ID of the prescription being processed."),
		}),
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			filePath, err := stringArg(args, "file_path")
			if err != nil {
				return nil, err
			}
			prescriptionID, err := stringArg(args, "prescription_id")
			if err != nil {
				return nil, err
			}

			prescription, err := deps.Store.Get(ctx, colPrescriptions, prescriptionID)
			if err != nil {
				return nil, fmt.Errorf("prescription %s not found", prescriptionID)
			}
			storageURL := filePath
			if u, ok := prescription["storage_url"].(string); ok && u != "" {
				storageURL = u
			}

			result, err := deps.Completer.CompleteJSON(ctx, outbound.CompletionRequest{
				SystemPrompt: ocrSystemPrompt,
				UserPrompt: fmt.Sprintf("Extract text from this prescription image: %s\n\nBe thorough and accurate. Medical text is critical.",
					storageURL),
				Model: deps.VisionModel,
			})
			if err != nil {
				return nil, fmt.Errorf("ocr extraction: %w", err)
			}

			text, _ := result["text"].(string)
			confidence, _ := result["confidence"].(float64)
			needsReview := confidence < reviewConfidenceThreshold

			update := map[string]interface{}{
				"ocr_text":            text,
				"ocr_confidence":      confidence,
				"ocr_regions":         result["regions"],
				"ocr_warnings":        result["warnings"],
				"status":              "ocr_completed",
				"needs_manual_review": needsReview,
			}
			if err := deps.Store.Update(ctx, colPrescriptions, prescriptionID, update); err != nil {
				return nil, err
			}

			return map[string]interface{}{
				"prescription_id":     prescriptionID,
				"text":                text,
				"confidence":          confidence,
				"regions":             result["regions"],
				"warnings":            result["warnings"],
				"needs_manual_review": needsReview,
			}, nil
		},
	})
}
