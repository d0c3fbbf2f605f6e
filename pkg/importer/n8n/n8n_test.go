package n8n

import (
	"encoding/json"
	"testing"

	"github.com/durgasflow/durgasflow/pkg/graph"
	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const orderWebhook = `{
  "id": "42",
  "name": "Order webhook",
  "nodes": [
    {"name": "Webhook", "type": "n8n-nodes-base.webhook", "typeVersion": 1, "position": [100, 300],
     "parameters": {"httpMethod": "POST", "path": "orders"}},
    {"name": "Is paid", "type": "n8n-nodes-base.if", "typeVersion": 1, "position": [300, 300],
     "parameters": {"conditions": {"string": [{"value1": "={{$json.status}}", "operation": "equal", "value2": "paid"}]}}},
    {"name": "Mark", "type": "n8n-nodes-base.set", "typeVersion": 2, "position": [500, 200],
     "parameters": {"values": {"string": [{"name": "customer", "value": "={{ $json.customer.name }}"}], "boolean": [{"name": "paid", "value": true}]}}},
    {"name": "Notify", "type": "n8n-nodes-base.httpRequest", "typeVersion": 4, "position": [700, 200],
     "parameters": {"method": "POST", "url": "https://hooks.example.com/orders", "jsonBody": "={{ $json.customer }}", "options": {"timeout": 2500}}},
    {"name": "Slack", "type": "n8n-nodes-base.slack", "typeVersion": 2, "position": [500, 400],
     "parameters": {"channel": "#orders"}},
    {"name": "Note", "type": "n8n-nodes-base.stickyNote", "position": [0, 0], "parameters": {"content": "hi"}}
  ],
  "connections": {
    "Webhook": {"main": [[{"node": "Is paid", "type": "main", "index": 0}]]},
    "Is paid": {"main": [[{"node": "Mark", "type": "main", "index": 0}], [{"node": "Slack", "type": "main", "index": 0}]]},
    "Mark": {"main": [[{"node": "Notify", "type": "main", "index": 0}]]}
  }
}`

func TestValidate(t *testing.T) {
	assert.Empty(t, Validate([]byte(orderWebhook)))

	assert.Equal(t, []string{"workflow is not valid JSON"}, Validate([]byte(`{"nodes": [`)))

	errs := Validate([]byte(`{"name": "x"}`))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "nodes")

	// every problem is reported, not only the first
	errs = Validate([]byte(`{"nodes": [{"type": "a"}, {"name": "b"}, {"name": "c", "type": "d", "position": "top"}]}`))
	assert.Len(t, errs, 3)
}

func TestValidate_References(t *testing.T) {
	errs := Validate([]byte(`{
	  "nodes": [{"name": "A", "type": "t"}, {"name": "A", "type": "t"}],
	  "connections": {
	    "A": {"main": [[{"node": "B", "type": "main", "index": 0}]]},
	    "Ghost": {"main": [[{"node": "A", "type": "main", "index": 0}]]}
	  }
	}`))

	assert.Equal(t, []string{
		`duplicate node name "A"`,
		`connection from "A" to unknown node "B"`,
		`connection from unknown node "Ghost"`,
	}, errs)
}

func TestImport_RejectsInvalidDocuments(t *testing.T) {
	_, _, err := Import([]byte(`{"nodes": "none"}`))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Errors)
	assert.Contains(t, err.Error(), "invalid n8n workflow: ")

	_, _, err = Import([]byte(`{"nodes": [`))
	require.ErrorIs(t, err, ErrParse)
}

func TestParse(t *testing.T) {
	_, err := Parse([]byte(`nope`))
	require.ErrorIs(t, err, ErrParse)

	wf, err := Parse([]byte(orderWebhook))
	require.NoError(t, err)
	assert.Equal(t, "Order webhook", wf.Name)
	assert.Len(t, wf.Nodes, 6)
	assert.Equal(t, "Slack", wf.Connections["Is paid"]["main"][1][0].Node)
}

func TestConvert(t *testing.T) {
	wf, conversion, err := Import([]byte(orderWebhook))
	require.NoError(t, err)
	assert.Equal(t, "42", wf.ID)

	assert.Equal(t, Stats{
		TotalNodes:           5,
		SupportedNodes:       4,
		ConversionConfidence: 0.8,
		UnsupportedTypes:     []string{"n8n-nodes-base.slack"},
		SkippedNodes:         1,
	}, conversion.Stats)
	assert.False(t, conversion.Stats.LowConfidence())
	assert.Equal(t, models.TriggerTypeWebhook, conversion.TriggerType)

	projection, err := graph.Project(conversion.Graph)
	require.NoError(t, err)
	require.Len(t, projection.Nodes, 5)
	assert.Empty(t, projection.Skipped)

	byTitle := map[string]*models.WorkflowNode{}
	for _, n := range projection.Nodes {
		byTitle[n.Title] = n
	}

	webhook := byTitle["Webhook"]
	assert.Equal(t, "trigger/webhook", webhook.Type)
	assert.Equal(t, models.CategoryTypeTrigger, webhook.Category)
	assert.Equal(t, map[string]any{"method": "POST", "path": "orders"}, webhook.Config)
	assert.Equal(t, 100.0, webhook.PositionX)

	cond := byTitle["Is paid"]
	assert.Equal(t, "logic/if", cond.Type)
	assert.Equal(t, map[string]any{"field": "status", "operator": "equals", "value": "paid"}, cond.Config)
	assert.Equal(t, []models.Slot{{Name: "true", Type: "*"}, {Name: "false", Type: "*"}}, cond.Outputs)

	set := byTitle["Mark"]
	assert.Equal(t, "transform/set", set.Type)
	assert.Equal(t, map[string]any{"customer": "{{.input.customer.name}}", "paid": true}, set.Config["fields"])
	assert.Equal(t, true, set.Config["keep_input"])

	notify := byTitle["Notify"]
	assert.Equal(t, "action/http_request", notify.Type)
	assert.Equal(t, "{{.input.customer}}", notify.Config["body"])
	assert.Equal(t, 3.0, notify.Config["timeout"])

	slack := byTitle["Slack"]
	assert.Equal(t, UnsupportedNodeType, slack.Type)
	assert.Equal(t, "n8n-nodes-base.slack", slack.Config["n8n_type"])
	assert.Equal(t, map[string]any{"channel": "#orders"}, slack.Config["n8n_parameters"])

	require.Len(t, projection.Connections, 4)

	var falseBranch *models.Connection
	for _, c := range projection.Connections {
		if c.SourceNodeID == cond.NodeID && c.SourceOutput == 1 {
			falseBranch = c
		}
	}

	require.NotNil(t, falseBranch)
	assert.Equal(t, slack.NodeID, falseBranch.TargetNodeID)

	extra := gjson.GetBytes(conversion.Graph, "extra")
	assert.Equal(t, "Order webhook", extra.Get("n8n_metadata.name").String())
	assert.False(t, extra.Get("n8n_metadata.unsupported").Bool())
	assert.Equal(t, int64(5), extra.Get("conversion_stats.total_nodes").Int())
}

func TestConvert_LowConfidence(t *testing.T) {
	wf, err := Parse([]byte(`{"name": "mostly unknown", "nodes": [
	  {"name": "Start", "type": "n8n-nodes-base.manualTrigger"},
	  {"name": "Code", "type": "n8n-nodes-base.code", "parameters": {"jsCode": "return items"}},
	  {"name": "Sheet", "type": "n8n-nodes-base.googleSheets"}
	]}`))
	require.NoError(t, err)

	conversion, err := Convert(wf)
	require.NoError(t, err)

	assert.Equal(t, 0.33, conversion.Stats.ConversionConfidence)
	assert.True(t, conversion.Stats.LowConfidence())
	assert.True(t, gjson.GetBytes(conversion.Graph, "extra.n8n_metadata.unsupported").Bool())
	assert.Equal(t, models.TriggerTypeManual, conversion.TriggerType)
}

func TestConvert_Empty(t *testing.T) {
	conversion, err := Convert(&Workflow{Name: "empty"})
	require.NoError(t, err)

	assert.Equal(t, 0, conversion.Stats.TotalNodes)
	assert.Equal(t, 0.0, conversion.Stats.ConversionConfidence)
	assert.True(t, conversion.Stats.LowConfidence())

	var doc map[string]any
	require.NoError(t, json.Unmarshal(conversion.Graph, &doc))
	assert.Empty(t, doc["nodes"])
	assert.Empty(t, doc["links"])
}

func TestDetectTriggerType(t *testing.T) {
	tests := []struct {
		name  string
		types []string
		want  models.TriggerType
	}{
		{"webhook wins", []string{"n8n-nodes-base.scheduleTrigger", "n8n-nodes-base.webhook"}, models.TriggerTypeWebhook},
		{"schedule over event", []string{"n8n-nodes-base.githubTrigger", "n8n-nodes-base.scheduleTrigger"}, models.TriggerTypeSchedule},
		{"legacy cron", []string{"n8n-nodes-base.cron"}, models.TriggerTypeSchedule},
		{"trigger named", []string{"n8n-nodes-base.githubTrigger"}, models.TriggerTypeEvent},
		{"event named", []string{"custom.eventSource"}, models.TriggerTypeEvent},
		{"manual trigger", []string{"n8n-nodes-base.manualTrigger", "n8n-nodes-base.set"}, models.TriggerTypeManual},
		{"no nodes", nil, models.TriggerTypeManual},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := &Workflow{}
			for i, typ := range tt.types {
				wf.Nodes = append(wf.Nodes, Node{Name: string(rune('A' + i)), Type: typ})
			}

			assert.Equal(t, tt.want, DetectTriggerType(wf))
		})
	}
}

func TestMapScheduleTrigger(t *testing.T) {
	tests := []struct {
		params string
		want   string
	}{
		{`{"rule": {"interval": [{"field": "cronExpression", "expression": "5 4 * * 1"}]}}`, "5 4 * * 1"},
		{`{"rule": {"interval": [{"field": "minutes", "minutesInterval": 15}]}}`, "*/15 * * * *"},
		{`{"rule": {"interval": [{"field": "hours", "hoursInterval": 2, "triggerAtMinute": 30}]}}`, "30 */2 * * *"},
		{`{"rule": {"interval": [{"field": "days", "triggerAtHour": 9}]}}`, "0 9 */1 * *"},
		{`{"rule": {"interval": [{"field": "weeks", "triggerAtDay": [3], "triggerAtHour": 8}]}}`, "0 8 * * 3"},
	}

	for _, tt := range tests {
		m, ok := mapNode(Node{Type: "n8n-nodes-base.scheduleTrigger", Parameters: json.RawMessage(tt.params)})
		require.True(t, ok, tt.params)
		assert.Equal(t, "trigger/schedule", m.nodeType)
		assert.Equal(t, tt.want, m.props["cron"], tt.params)

		_, err := models.ParseCron(tt.want)
		assert.NoError(t, err)
	}

	_, ok := mapNode(Node{Type: "n8n-nodes-base.scheduleTrigger", Parameters: json.RawMessage(`{"rule": {"interval": [{"field": "seconds"}]}}`)})
	assert.False(t, ok)
}

func TestMapNode_Fallbacks(t *testing.T) {
	m, ok := mapNode(Node{Type: "n8n-nodes-base.githubTrigger"})
	require.True(t, ok)
	assert.Equal(t, "trigger/event", m.nodeType)
	assert.Equal(t, "n8n-nodes-base.githubTrigger", m.props["event_type"])

	_, ok = mapNode(Node{Type: "n8n-nodes-base.if", Parameters: json.RawMessage(`{"conditions": {"string": [{"value1": "={{ $node.Foo.json.x }}", "operation": "equal"}]}}`)})
	assert.False(t, ok, "references to other nodes cannot be converted")

	m, ok = mapNode(Node{Type: "n8n-nodes-base.merge", Parameters: json.RawMessage(`{"mode": "chooseBranch", "numberInputs": 3}`)})
	require.True(t, ok)
	assert.Equal(t, map[string]any{"mode": "first", "inputs": 3.0}, m.props)
	assert.Equal(t, 3, m.inputs)

	m, ok = mapNode(Node{Type: "n8n-nodes-base.switch", Parameters: json.RawMessage(`{"value1": "={{$json.kind}}", "rules": {"rules": [{"value2": "a"}, {"value2": "b"}]}}`)})
	require.True(t, ok)
	assert.Equal(t, "{{.input.kind}}", m.props["value"])
	assert.Equal(t, []string{"case_0", "case_1", "default"}, m.outputs)
}

func TestConvertExpression(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"plain", "plain", true},
		{"={{ $json.id }}", "{{.input.id}}", true},
		{"=Hello {{$json.user.name}}!", "Hello {{.input.user.name}}!", true},
		{"={{ $now }}", "={{ $now }}", false},
		{"=static", "static", true},
	}

	for _, tt := range tests {
		got, ok := convertExpression(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}
