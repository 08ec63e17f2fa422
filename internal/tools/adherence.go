package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/medicos-health/medigate/internal/domain/tool"
	"github.com/medicos-health/medigate/internal/port/outbound"
)

const adherenceAnalyzeSystemPrompt = `You are an adherence analysis expert. Analyze medication adherence patterns.
Look for:
- Timing patterns (consistently late/early)
- Missed doses patterns
- Snooze patterns
- Medicine-specific adherence differences

Return JSON with:
- "adherence_rate": percentage (0-100)
- "patterns": array of pattern descriptions
- "recommendations": array of actionable recommendations
- "warnings": any adherence warnings`

var validActions = map[string]bool{
	"taken":   true,
	"skipped": true,
	"snoozed": true,
}

func registerAdherenceTools(reg *tool.Registry, deps Deps) error {
	tools := []tool.Descriptor{
		{
			Name:        "med.log_action",
			Description: "Log a medication action (taken, skipped, snoozed).",
			Sensitivity: tool.Sensitive,
			InputSchema: objectSchema([]string{"user_id", "schedule_id", "event_index", "action"}, map[string]interface{}{
				"user_id":     strProp(""),
				"schedule_id": strProp(""),
				"event_index": intProp("Index of the schedule event in schedule_events array."),
				"action": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"taken", "skipped", "snoozed"},
					"description": "Action taken by user.",
				},
				"timestamp": strProp("ISO timestamp of action (defaults to now)."),
				"notes":     strProp("Optional notes about the action."),
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
				action := optString(args, "action", "")
				if !validActions[action] {
					return nil, fmt.Errorf("missing or invalid 'action' (must be 'taken', 'skipped', or 'snoozed')")
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

				timestamp := optString(args, "timestamp", nowISO())
				logID := uuid.NewString()
				entry := map[string]interface{}{
					"user_id":        userID,
					"schedule_id":    scheduleID,
					"event_index":    idx,
					"medicine_name":  event["medicine_name"],
					"scheduled_time": event["time"],
					"action":         action,
					"timestamp":      timestamp,
					"notes":          optString(args, "notes", ""),
					"created_at":     nowISO(),
				}
				if err := deps.Store.Put(ctx, colMedLogs, logID, entry); err != nil {
					return nil, err
				}

				return map[string]interface{}{
					"log_id":    logID,
					"action":    action,
					"timestamp": timestamp,
				}, nil
			},
		},
		{
			Name:        "adherence.analyze",
			Description: "Analyze medication adherence patterns and generate insights.",
			Sensitivity: tool.Sensitive,
			InputSchema: objectSchema([]string{"user_id", "schedule_id"}, map[string]interface{}{
				"user_id":     strProp(""),
				"schedule_id": strProp(""),
				"days":        intProp("Number of days to analyze (default: 7)."),
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
				days := optInt(args, "days", 7)

				schedule, err := deps.Store.Get(ctx, colSchedules, scheduleID)
				if err != nil {
					return nil, fmt.Errorf("schedule %s not found", scheduleID)
				}
				events, _ := schedule["schedule_events"].([]interface{})

				cutoff := time.Now().UTC().AddDate(0, 0, -days)
				logs, err := deps.Store.Query(ctx, colMedLogs, []outbound.Filter{
					{Field: "schedule_id", Op: "==", Value: scheduleID},
					{Field: "timestamp", Op: ">=", Value: cutoff.Format(time.RFC3339)},
				})
				if err != nil {
					return nil, fmt.Errorf("query med logs: %w", err)
				}
				sort.Slice(logs, func(i, j int) bool {
					return fmt.Sprint(logs[i]["timestamp"]) < fmt.Sprint(logs[j]["timestamp"])
				})

				totalExpected := len(events) * days
				var taken, skipped, snoozed int
				for _, log := range logs {
					switch log["action"] {
					case "taken":
						taken++
					case "skipped":
						skipped++
					case "snoozed":
						snoozed++
					}
				}
				adherenceRate := 0.0
				if totalExpected > 0 {
					adherenceRate = float64(taken) / float64(totalExpected) * 100
				}

				recent := logs
				if len(recent) > 20 {
					recent = recent[len(recent)-20:]
				}
				summary := map[string]interface{}{
					"total_expected":  totalExpected,
					"taken":           taken,
					"skipped":         skipped,
					"snoozed":         snoozed,
					"schedule_events": events,
					"logs":            recent,
				}
				summaryJSON, err := json.Marshal(summary)
				if err != nil {
					return nil, fmt.Errorf("encode summary: %w", err)
				}

				result, err := deps.Completer.CompleteJSON(ctx, outbound.CompletionRequest{
					SystemPrompt: adherenceAnalyzeSystemPrompt,
					UserPrompt:   fmt.Sprintf("Analyze adherence for this schedule:\n\n%s\n\nProvide insights and recommendations.", summaryJSON),
				})
				if err != nil {
					return nil, fmt.Errorf("adherence analysis: %w", err)
				}

				statsID := uuid.NewString()
				if err := deps.Store.Put(ctx, colAdherenceStats, statsID, map[string]interface{}{
					"user_id":         userID,
					"schedule_id":     scheduleID,
					"period_days":     days,
					"period_start":    cutoff.Format(time.RFC3339),
					"period_end":      nowISO(),
					"total_expected":  totalExpected,
					"taken_count":     taken,
					"skipped_count":   skipped,
					"snoozed_count":   snoozed,
					"adherence_rate":  adherenceRate,
					"patterns":        result["patterns"],
					"recommendations": result["recommendations"],
					"warnings":        result["warnings"],
					"computed_at":     nowISO(),
				}); err != nil {
					return nil, err
				}

				return map[string]interface{}{
					"stats_id":        statsID,
					"adherence_rate":  adherenceRate,
					"taken_count":     taken,
					"skipped_count":   skipped,
					"snoozed_count":   snoozed,
					"patterns":        result["patterns"],
					"recommendations": result["recommendations"],
				}, nil
			},
		},
		{
			Name:        "adherence.get_history",
			Description: "Return recent medication action logs for a schedule.",
			Sensitivity: tool.Routine,
			InputSchema: objectSchema([]string{"schedule_id"}, map[string]interface{}{
				"schedule_id": strProp(""),
				"days":        intProp("Number of days of history (default: 7)."),
				"limit":       intProp("Maximum number of logs to return."),
			}),
			Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
				scheduleID, err := stringArg(args, "schedule_id")
				if err != nil {
					return nil, err
				}
				days := optInt(args, "days", 7)
				cutoff := time.Now().UTC().AddDate(0, 0, -days)

				logs, err := deps.Store.Query(ctx, colMedLogs, []outbound.Filter{
					{Field: "schedule_id", Op: "==", Value: scheduleID},
					{Field: "timestamp", Op: ">=", Value: cutoff.Format(time.RFC3339)},
				})
				if err != nil {
					return nil, fmt.Errorf("query med logs: %w", err)
				}
				sort.Slice(logs, func(i, j int) bool {
					return fmt.Sprint(logs[i]["timestamp"]) > fmt.Sprint(logs[j]["timestamp"])
				})
				if limit := optInt(args, "limit", 0); limit > 0 && len(logs) > limit {
					logs = logs[:limit]
				}

				return map[string]interface{}{
					"schedule_id": scheduleID,
					"logs":        logs,
					"count":       len(logs),
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
