package tools

import (
	"context"
	"fmt"

	"github.com/medicos-health/medigate/internal/domain/tool"
	"github.com/medicos-health/medigate/internal/port/outbound"
)

func registerNotifyTools(reg *tool.Registry, deps Deps) error {
	return reg.Register(tool.Descriptor{
		Name:        "notify.send",
		Description: "Send a notification to a user's devices or topic.",
		Sensitivity: tool.Sensitive,
		InputSchema: objectSchema([]string{"user_id"}, map[string]interface{}{
			"user_id":           strProp(""),
			"device_tokens":     arrProp("FCM device tokens. Falls back to user profile tokens."),
			"topic":             strProp("FCM topic (e.g., 'user_123')."),
			"title":             strProp(""),
			"body":              strProp(""),
			"data":              objProp("Custom data payload."),
			"notification_type": strProp("Defaults to 'reminder'."),
		}),
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			userID, err := stringArg(args, "user_id")
			if err != nil {
				return nil, err
			}
			title := optString(args, "title", "Medication Reminder")
			body := optString(args, "body", "")
			notificationType := optString(args, "notification_type", "reminder")
			topic := optString(args, "topic", "")

			var tokens []string
			switch v := args["device_tokens"].(type) {
			case string:
				if v != "" {
					tokens = []string{v}
				}
			case []interface{}:
				for _, raw := range v {
					if s, ok := raw.(string); ok && s != "" {
						tokens = append(tokens, s)
					}
				}
			}

			if len(tokens) == 0 && topic == "" {
				// Fall back to the tokens registered on the user profile.
				user, err := deps.Store.Get(ctx, "users", userID)
				if err == nil {
					if raw, ok := user["fcm_tokens"].([]interface{}); ok {
						for _, t := range raw {
							if s, ok := t.(string); ok && s != "" {
								tokens = append(tokens, s)
							}
						}
					}
				}
				if len(tokens) == 0 {
					return nil, fmt.Errorf("must provide either 'device_tokens' or 'topic'")
				}
			}

			data := map[string]string{
				"type":    notificationType,
				"user_id": userID,
			}
			for k, v := range optMap(args, "data") {
				data[k] = fmt.Sprint(v)
			}

			successCount := 0
			var failed []map[string]interface{}

			if len(tokens) > 0 {
				for _, token := range tokens {
					_, err := deps.Notifier.Send(ctx, outbound.Notification{
						Title: title,
						Body:  body,
						Data:  data,
						Token: token,
					})
					if err != nil {
						failed = append(failed, map[string]interface{}{"token": token, "error": err.Error()})
						continue
					}
					successCount++
				}
			} else {
				if _, err := deps.Notifier.Send(ctx, outbound.Notification{
					Title: title,
					Body:  body,
					Data:  data,
					Topic: topic,
				}); err != nil {
					return map[string]interface{}{
						"success": false,
						"error":   err.Error(),
						"topic":   topic,
					}, nil
				}
				successCount = 1
			}

			return map[string]interface{}{
				"success":           successCount > 0,
				"success_count":     successCount,
				"failed_tokens":     failed,
				"notification_type": notificationType,
			}, nil
		},
	})
}
