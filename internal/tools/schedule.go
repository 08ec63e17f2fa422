package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/medicos-health/medigate/internal/domain/tool"
	"github.com/medicos-health/medigate/internal/port/outbound"
)

const scheduleGenerateSystemPrompt = `You are a medication scheduling expert. Create an optimal daily schedule.
Consider:
- Spacing doses appropriately (e.g., every 8 hours for TID)
- Avoiding too many doses at once
- Respecting wake/sleep times
- Meal timing (AC/PC instructions)
- Bedtime medications (HS)

Return JSON with:
- "schedule": array of schedule events, each with:
  - "medicine_name": name of medicine
  - "time": time in HH:MM format (24-hour)
  - "dose": dosage to take
  - "instructions": any special instructions
  - "window_minutes": acceptable window (±minutes from scheduled time)
  - "meal_relation": "before", "after", "with", or null
- "warnings": any scheduling warnings`

const scheduleAdjustSystemPrompt = `You are a medication schedule adjuster. You can ONLY adjust timing.
CRITICAL RULES:
- NEVER change dosage amounts
- NEVER add or remove medicines
- ONLY shift times (e.g., move 8:00 AM to 8:30 AM)
- Keep the same number of doses per day
- Respect wake/sleep windows

Return JSON with:
- "adjusted_events": array of adjusted schedule events (same structure as input)
- "changes": array describing what changed, each with:
  - "event_index": index in original array
  - "old_time": original time
  - "new_time": new time
  - "reason": why it changed
- "requires_user_confirmation": boolean (true if significant changes)`

// verifyTimingOnly rejects model output that changed anything besides
// event times. Dosage and medicine identity must survive adjustment
// byte for byte.
func verifyTimingOnly(original, adjusted []interface{}) error {
	if len(adjusted) != len(original) {
		return fmt.Errorf("cannot add or remove medicines from schedule")
	}
	for i := range original {
		orig, _ := original[i].(map[string]interface{})
		adj, _ := adjusted[i].(map[string]interface{})
		if orig == nil || adj == nil {
			return fmt.Errorf("malformed schedule event at index %d", i)
		}
		if fmt.Sprint(orig["medicine_name"]) != fmt.Sprint(adj["medicine_name"]) {
			return fmt.Errorf("cannot change medicine at index %d", i)
		}
		if fmt.Sprint(orig["dose"]) != fmt.Sprint(adj["dose"]) {
			return fmt.Errorf("cannot change dosage at index %d", i)
		}
	}
	return nil
}

func registerScheduleTools(reg *tool.Registry, deps Deps) error {
	tools := []tool.Descriptor{
		{
			Name:        "schedule.generate",
			Description: "Generate a medication schedule from validated medicines.",
			Sensitivity: tool.Sensitive,
			InputSchema: objectSchema([]string{"prescription_id", "user_id"}, map[string]interface{}{
				"prescription_id": strProp(""),
				"user_id":         strProp(""),
				"wake_time":       strProp("Wake time in HH:MM format (default: 08:00)."),
				"sleep_time":      strProp("Sleep time in HH:MM format (default: 22:00)."),
			}),
			Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
				prescriptionID, err := stringArg(args, "prescription_id")
				if err != nil {
					return nil, err
				}
				userID, err := stringArg(args, "user_id")
				if err != nil {
					return nil, err
				}
				wakeTime := optString(args, "wake_time", "08:00")
				sleepTime := optString(args, "sleep_time", "22:00")

				prescription, err := deps.Store.Get(ctx, colPrescriptions, prescriptionID)
				if err != nil {
					return nil, fmt.Errorf("prescription %s not found", prescriptionID)
				}
				medicines, _ := prescription["parsed_medicines"].([]interface{})
				if len(medicines) == 0 {
					return nil, fmt.Errorf("no medicines found, run rx.parse_text first")
				}
				if status, _ := prescription["validation_status"].(string); status != "validated" {
					return nil, fmt.Errorf("prescription not validated (status: %v), run rx.validate and get user confirmation first",
						prescription["validation_status"])
				}

				medicinesJSON, err := json.Marshal(medicines)
				if err != nil {
					return nil, fmt.Errorf("encode medicines: %w", err)
				}
				result, err := deps.Completer.CompleteJSON(ctx, outbound.CompletionRequest{
					SystemPrompt: scheduleGenerateSystemPrompt,
					UserPrompt: fmt.Sprintf("Create a schedule for these medicines:\n\n%s\n\nWake time: %s\nSleep time: %s\n\nCreate an optimal daily schedule.",
						medicinesJSON, wakeTime, sleepTime),
				})
				if err != nil {
					return nil, fmt.Errorf("schedule generation: %w", err)
				}

				events := result["schedule"]
				warnings := result["warnings"]

				var medicineIDs []string
				for _, raw := range medicines {
					med, _ := raw.(map[string]interface{})
					if med == nil {
						continue
					}
					medID := uuid.NewString()
					if err := deps.Store.Put(ctx, colMedicines, medID, map[string]interface{}{
						"user_id":         userID,
						"prescription_id": prescriptionID,
						"name":            med["name"],
						"strength":        med["strength"],
						"route":           med["route"],
						"frequency":       med["frequency"],
						"duration":        med["duration"],
						"instructions":    med["instructions"],
						"status":          "active",
						"created_at":      nowISO(),
					}); err != nil {
						return nil, err
					}
					medicineIDs = append(medicineIDs, medID)
				}

				scheduleID := uuid.NewString()
				if err := deps.Store.Put(ctx, colSchedules, scheduleID, map[string]interface{}{
					"user_id":         userID,
					"prescription_id": prescriptionID,
					"schedule_events": events,
					"wake_time":       wakeTime,
					"sleep_time":      sleepTime,
					"warnings":        warnings,
					"status":          "active",
					"created_at":      nowISO(),
				}); err != nil {
					return nil, err
				}

				if err := deps.Store.Update(ctx, colPrescriptions, prescriptionID, map[string]interface{}{
					"status":      "scheduled",
					"schedule_id": scheduleID,
				}); err != nil {
					return nil, err
				}

				return map[string]interface{}{
					"prescription_id": prescriptionID,
					"schedule_id":     scheduleID,
					"medicine_ids":    medicineIDs,
					"schedule_events": events,
					"warnings":        warnings,
				}, nil
			},
		},
		{
			Name:        "schedule.adjust",
			Description: "Adjust reminder timing only (never changes dosage or medicines).",
			Sensitivity: tool.Sensitive,
			InputSchema: objectSchema([]string{"schedule_id"}, map[string]interface{}{
				"schedule_id": strProp(""),
				"adjustment_reason": strProp(
					"Reason for adjustment (e.g., 'snooze_pattern', 'adherence_optimization')."),
			}),
			Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
				scheduleID, err := stringArg(args, "schedule_id")
				if err != nil {
					return nil, err
				}
				reason := optString(args, "adjustment_reason", "user_request")

				schedule, err := deps.Store.Get(ctx, colSchedules, scheduleID)
				if err != nil {
					return nil, fmt.Errorf("schedule %s not found", scheduleID)
				}
				originalEvents, _ := schedule["schedule_events"].([]interface{})

				eventsJSON, err := json.Marshal(originalEvents)
				if err != nil {
					return nil, fmt.Errorf("encode schedule events: %w", err)
				}
				result, err := deps.Completer.CompleteJSON(ctx, outbound.CompletionRequest{
					SystemPrompt: scheduleAdjustSystemPrompt,
					UserPrompt: fmt.Sprintf("Adjust timing for this schedule:\n\n%s\n\nAdjustment reason: %s\n\nONLY adjust times. Do not change dosages or medicines.",
						eventsJSON, reason),
				})
				if err != nil {
					return nil, fmt.Errorf("schedule adjustment: %w", err)
				}

				adjustedEvents, _ := result["adjusted_events"].([]interface{})
				if err := verifyTimingOnly(originalEvents, adjustedEvents); err != nil {
					return nil, err
				}
				requiresConfirmation, _ := result["requires_user_confirmation"].(bool)

				if err := deps.Store.Update(ctx, colSchedules, scheduleID, map[string]interface{}{
					"schedule_events":            adjustedEvents,
					"last_adjusted_at":           nowISO(),
					"adjustment_reason":          reason,
					"adjustment_changes":         result["changes"],
					"requires_user_confirmation": requiresConfirmation,
				}); err != nil {
					return nil, err
				}

				return map[string]interface{}{
					"schedule_id":                scheduleID,
					"adjusted_events":            adjustedEvents,
					"changes":                    result["changes"],
					"requires_user_confirmation": requiresConfirmation,
				}, nil
			},
		},
		{
			Name:        "schedule.create_reminder",
			Description: "Create a reminder for a schedule event and notify the user's devices.",
			Sensitivity: tool.Sensitive,
			InputSchema: objectSchema([]string{"user_id", "schedule_id", "event_index"}, map[string]interface{}{
				"user_id":     strProp(""),
				"schedule_id": strProp(""),
				"event_index": intProp("Index of the schedule event in schedule_events array."),
				"topic":       strProp("Optional FCM topic override (defaults to user_<user_id>)."),
			}),
			Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
				userID, err := stringArg(args, "user_id")
				if err != nil {
					return nil, err
				}
				scheduleID, err := stringArg(args, "schedule_id")
				if err != nil {
					return nil, err
				}

				schedule, err := deps.Store.Get(ctx, colSchedules, scheduleID)
				if err != nil {
					return nil, fmt.Errorf("schedule %s not found", scheduleID)
				}
				events, _ := schedule["schedule_events"].([]interface{})
				idx := optInt(args, "event_index", -1)
				if idx < 0 || idx >= len(events) {
					return nil, fmt.Errorf("invalid event_index: %d", idx)
				}
				event, _ := events[idx].(map[string]interface{})
				if event == nil {
					return nil, fmt.Errorf("malformed schedule event at index %d", idx)
				}

				medicineName := fmt.Sprint(event["medicine_name"])
				eventTime := fmt.Sprint(event["time"])
				topic := optString(args, "topic", "user_"+userID)

				reminderID := uuid.NewString()
				if err := deps.Store.Put(ctx, colReminders, reminderID, map[string]interface{}{
					"user_id":       userID,
					"schedule_id":   scheduleID,
					"event_index":   idx,
					"medicine_name": medicineName,
					"time":          eventTime,
					"status":        "active",
					"created_at":    nowISO(),
				}); err != nil {
					return nil, err
				}

				msgID, err := deps.Notifier.Send(ctx, outbound.Notification{
					Title: "Medication Reminder",
					Body:  fmt.Sprintf("Time to take %s at %s", medicineName, eventTime),
					Data: map[string]string{
						"type":        "reminder",
						"reminder_id": reminderID,
						"schedule_id": scheduleID,
					},
					Topic: topic,
				})
				if err != nil {
					return nil, fmt.Errorf("send reminder: %w", err)
				}

				return map[string]interface{}{
					"reminder_id": reminderID,
					"message_id":  msgID,
					"time":        eventTime,
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
