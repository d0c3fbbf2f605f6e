package registry

import (
	"github.com/durgasflow/durgasflow/pkg/nodes/conditional"
	"github.com/durgasflow/durgasflow/pkg/nodes/httprequest"
	"github.com/durgasflow/durgasflow/pkg/nodes/log"
	"github.com/durgasflow/durgasflow/pkg/nodes/merge"
	switchnode "github.com/durgasflow/durgasflow/pkg/nodes/switch"
	"github.com/durgasflow/durgasflow/pkg/nodes/transform"
	"github.com/durgasflow/durgasflow/pkg/nodes/trigger"
)

// RegisterDefaultNodes registers all built-in node handlers with the registry.
func (r *Registry) RegisterDefaultNodes() {
	// Triggers
	r.RegisterNode(trigger.NewManualTriggerNode())
	r.RegisterNode(trigger.NewWebhookTriggerNode())
	r.RegisterNode(trigger.NewScheduleTriggerNode())
	r.RegisterNode(trigger.NewEventTriggerNode())

	// Logic
	r.RegisterNode(conditional.NewConditionalNode())
	r.RegisterNode(switchnode.NewSwitchNode())
	r.RegisterNode(merge.NewMergeNode())

	// Actions
	r.RegisterNode(log.NewLogNode())
	r.RegisterNode(httprequest.NewHTTPRequestNode())
	r.RegisterNode(transform.NewSetNode())
	r.RegisterNode(transform.NewTemplateNode())
}
