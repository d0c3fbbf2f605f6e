package n8n

import (
	"strings"

	"github.com/durgasflow/durgasflow/pkg/models"
)

// DetectTriggerType picks the workflow trigger from the node types. A webhook
// node wins over a schedule node, which wins over any other node whose type
// mentions an event or a trigger. The manual trigger is not ambiguous and
// never counts as an event.
func DetectTriggerType(wf *Workflow) models.TriggerType {
	has := func(match func(nodeType string) bool) bool {
		for _, node := range wf.Nodes {
			if match(node.Type) {
				return true
			}
		}

		return false
	}

	switch {
	case has(func(t string) bool { return t == "n8n-nodes-base.webhook" }):
		return models.TriggerTypeWebhook
	case has(func(t string) bool { return t == "n8n-nodes-base.scheduleTrigger" || t == "n8n-nodes-base.cron" }):
		return models.TriggerTypeSchedule
	case has(isEventType):
		return models.TriggerTypeEvent
	default:
		return models.TriggerTypeManual
	}
}

func isEventType(nodeType string) bool {
	if nodeType == "n8n-nodes-base.manualTrigger" {
		return false
	}

	lower := strings.ToLower(nodeType)

	return strings.Contains(lower, "event") || strings.Contains(lower, "trigger")
}
