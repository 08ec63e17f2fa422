package tools

import (
	"fmt"

	"github.com/medicos-health/medigate/internal/domain/guard"
	"github.com/medicos-health/medigate/internal/domain/tool"
	"github.com/medicos-health/medigate/internal/port/outbound"
)

// Deps holds the outbound ports the tool handlers run against.
type Deps struct {
	Store     outbound.DocumentStore
	Blobs     outbound.BlobStore
	Notifier  outbound.Notifier
	Completer outbound.Completer

	// VisionModel is used for image OCR calls. Empty means the
	// completer's default model.
	VisionModel string

	// Guards maps tool names to CEL expressions evaluated against the
	// call arguments before the handler runs. Merged over DefaultGuards;
	// an empty expression removes a default.
	Guards map[string]string
}

// DefaultGuards are the built-in argument guards.
func DefaultGuards() map[string]string {
	return map[string]string{
		// Medication logs are append-only; agents must not delete them
		// through the raw document tools.
		"records.delete": `args.collection != 'med_logs'`,
		"med.log_action": `'action' in args && args.action in ['taken', 'skipped', 'snoozed']`,
	}
}

// RegisterAll registers every tool and freezes the registry.
func RegisterAll(reg *tool.Registry, deps Deps) error {
	registrars := []func(*tool.Registry, Deps) error{
		registerRecordTools,
		registerOCRTools,
		registerRxTools,
		registerDrugTools,
		registerScheduleTools,
		registerNotifyTools,
		registerAdherenceTools,
	}
	for _, register := range registrars {
		if err := register(reg, deps); err != nil {
			return err
		}
	}

	guards := DefaultGuards()
	for name, expr := range deps.Guards {
		if expr == "" {
			delete(guards, name)
			continue
		}
		guards[name] = expr
	}
	if len(guards) > 0 {
		eval, err := guard.NewEvaluator()
		if err != nil {
			return fmt.Errorf("init guard evaluator: %w", err)
		}
		for name, expr := range guards {
			desc, ok := reg.Resolve(name)
			if !ok {
				return fmt.Errorf("guard references unknown tool %q", name)
			}
			g, err := eval.Compile(name, expr)
			if err != nil {
				return fmt.Errorf("compile guard for %s: %w", name, err)
			}
			desc.Guard = g
		}
	}

	reg.Freeze()
	return nil
}
