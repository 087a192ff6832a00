// Package notify implements bucket event notifications: parsing and
// validating the per-bucket XML configuration, matching emitted events
// against its handler bindings, and dispatching matched events to target
// functions through an adapter.
package notify

import (
	"encoding/xml"
	"fmt"

	"github.com/woofstack/platform/errs"
	"github.com/woofstack/platform/types"
)

// ParseConfig decodes and validates a NotificationConfiguration document.
//
// Validation is strict where the closed sets are concerned: every Event
// entry must name (or wildcard onto) a known event type, every filter
// rule must use the one supported rule name ("prefix"), and every target
// must be a parseable function ARN. Unsupported filter rule names are a
// service-level rejection rather than a caller error, preserving the
// wire behaviour existing clients observe.
func ParseConfig(data []byte) (*types.NotificationConfig, error) {
	var cfg types.NotificationConfig
	if err := xml.Unmarshal(data, &cfg); err != nil {
		return nil, errs.Wrap(errs.InvalidParameter, "notify.ParseConfig", err)
	}

	for i, binding := range cfg.Bindings {
		if len(binding.Events) == 0 {
			return nil, errs.Invalid("notify.ParseConfig",
				fmt.Sprintf("configuration %d declares no events", i))
		}
		for _, event := range binding.Events {
			if !types.ValidEventPattern(event) {
				return nil, errs.Invalid("notify.ParseConfig",
					fmt.Sprintf("unknown event type %q", event))
			}
		}
		if _, ok := types.ParseFunctionArn(binding.TargetArn); !ok {
			return nil, errs.Invalid("notify.ParseConfig",
				fmt.Sprintf("target %q is not a function ARN", binding.TargetArn))
		}
		for _, rule := range binding.RawFilterRules() {
			if rule.Name != "prefix" {
				return nil, errs.New(errs.ServiceError, "notify.ParseConfig",
					fmt.Sprintf("unsupported filter rule %q", rule.Name))
			}
		}
	}

	return &cfg, nil
}
