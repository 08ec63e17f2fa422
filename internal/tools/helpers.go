// Package tools registers the medication workflow tool handlers:
// prescription intake, parsing, validation, scheduling, reminders, and
// adherence tracking.
package tools

import (
	"fmt"
	"time"
)

// Firestore collection names shared across handlers.
const (
	colPrescriptions  = "prescriptions"
	colMedicines      = "medicines"
	colSchedules      = "schedules"
	colMedLogs        = "med_logs"
	colAdherenceStats = "adherence_stats"
	colReminders      = "reminders"
)

func stringArg(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("missing required field %q", key)
	}
	return v, nil
}

func optString(args map[string]interface{}, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

func optInt(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func optMap(args map[string]interface{}, key string) map[string]interface{} {
	if v, ok := args[key].(map[string]interface{}); ok {
		return v
	}
	return nil
}

func optSlice(args map[string]interface{}, key string) []interface{} {
	if v, ok := args[key].([]interface{}); ok {
		return v
	}
	return nil
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func objectSchema(required []string, props map[string]interface{}) map[string]interface{} {
	schema := map[string]interface{}{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": true,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func strProp(desc string) map[string]interface{} {
	p := map[string]interface{}{"type": "string"}
	if desc != "" {
		p["description"] = desc
	}
	return p
}

func intProp(desc string) map[string]interface{} {
	p := map[string]interface{}{"type": "integer"}
	if desc != "" {
		p["description"] = desc
	}
	return p
}

func arrProp(desc string) map[string]interface{} {
	p := map[string]interface{}{"type": "array"}
	if desc != "" {
		p["description"] = desc
	}
	return p
}

func objProp(desc string) map[string]interface{} {
	p := map[string]interface{}{"type": "object"}
	if desc != "" {
		p["description"] = desc
	}
	return p
}
