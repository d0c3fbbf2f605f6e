package n8n

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

type mapped struct {
	nodeType string
	props    map[string]any
	inputs   int
	outputs  []string
}

type mapper func(params gjson.Result) (mapped, bool)

var mappers = map[string]mapper{
	"n8n-nodes-base.manualTrigger":   mapManualTrigger,
	"n8n-nodes-base.webhook":         mapWebhook,
	"n8n-nodes-base.scheduleTrigger": mapScheduleTrigger,
	"n8n-nodes-base.cron":            mapLegacyCron,
	"n8n-nodes-base.httpRequest":     mapHTTPRequest,
	"n8n-nodes-base.if":              mapIf,
	"n8n-nodes-base.switch":          mapSwitch,
	"n8n-nodes-base.merge":           mapMerge,
	"n8n-nodes-base.set":             mapSet,
	"n8n-nodes-base.noOp":            mapNoOp,
}

// mapNode reports false when the node type is unknown or its parameters use
// features the built-in handlers cannot express.
func mapNode(node Node) (mapped, bool) {
	params := gjson.ParseBytes(node.Parameters)

	if fn, ok := mappers[node.Type]; ok {
		return fn(params)
	}

	if strings.Contains(strings.ToLower(node.Type), "trigger") {
		return mapped{
			nodeType: "trigger/event",
			props:    map[string]any{"event_type": node.Type},
			outputs:  []string{"payload"},
		}, true
	}

	return mapped{}, false
}

func placeholder(node Node) mapped {
	var params any = map[string]any{}
	if len(node.Parameters) > 0 {
		_ = json.Unmarshal(node.Parameters, &params)
	}

	return mapped{
		nodeType: UnsupportedNodeType,
		props: map[string]any{
			"n8n_type":         node.Type,
			"n8n_type_version": node.TypeVersion,
			"n8n_parameters":   params,
		},
		inputs:  1,
		outputs: []string{"out"},
	}
}

func mapManualTrigger(gjson.Result) (mapped, bool) {
	return mapped{nodeType: "trigger/manual", props: map[string]any{}, outputs: []string{"payload"}}, true
}

func mapWebhook(p gjson.Result) (mapped, bool) {
	method := strings.ToUpper(p.Get("httpMethod").String())
	if method == "" {
		method = "GET"
	}

	return mapped{
		nodeType: "trigger/webhook",
		props:    map[string]any{"method": method, "path": p.Get("path").String()},
		outputs:  []string{"payload"},
	}, true
}

func mapScheduleTrigger(p gjson.Result) (mapped, bool) {
	rule := p.Get("rule.interval.0")
	minute := rule.Get("triggerAtMinute").Int()
	hour := rule.Get("triggerAtHour").Int()

	var cron string

	switch rule.Get("field").String() {
	case "cronExpression":
		cron = rule.Get("expression").String()
	case "minutes":
		cron = fmt.Sprintf("*/%d * * * *", every(rule.Get("minutesInterval")))
	case "hours":
		cron = fmt.Sprintf("%d */%d * * *", minute, every(rule.Get("hoursInterval")))
	case "days", "":
		cron = fmt.Sprintf("%d %d */%d * *", minute, hour, every(rule.Get("daysInterval")))
	case "weeks":
		day := int64(0)
		if days := rule.Get("triggerAtDay").Array(); len(days) > 0 {
			day = days[0].Int()
		}

		cron = fmt.Sprintf("%d %d * * %d", minute, hour, day)
	default:
		return mapped{}, false
	}

	if cron == "" || len(strings.Fields(cron)) != 5 {
		return mapped{}, false
	}

	return scheduleNode(cron), true
}

func mapLegacyCron(p gjson.Result) (mapped, bool) {
	item := p.Get("triggerTimes.item.0")
	minute := item.Get("minute").Int()
	hour := item.Get("hour").Int()

	var cron string

	switch item.Get("mode").String() {
	case "everyMinute":
		cron = "* * * * *"
	case "everyHour":
		cron = fmt.Sprintf("%d * * * *", minute)
	case "everyDay", "":
		cron = fmt.Sprintf("%d %d * * *", minute, hour)
	case "everyWeek":
		cron = fmt.Sprintf("%d %d * * %d", minute, hour, item.Get("weekday").Int())
	case "custom":
		cron = item.Get("cronExpression").String()
	default:
		return mapped{}, false
	}

	if len(strings.Fields(cron)) != 5 {
		return mapped{}, false
	}

	return scheduleNode(cron), true
}

func scheduleNode(cron string) mapped {
	return mapped{
		nodeType: "trigger/schedule",
		props:    map[string]any{"cron": cron},
		outputs:  []string{"payload"},
	}
}

func every(v gjson.Result) int64 {
	if n := v.Int(); n > 0 {
		return n
	}

	return 1
}

func mapHTTPRequest(p gjson.Result) (mapped, bool) {
	url, ok := convertExpression(p.Get("url").String())
	if !ok || url == "" {
		return mapped{}, false
	}

	method := p.Get("method").String()
	if method == "" {
		method = p.Get("requestMethod").String()
	}

	if method == "" {
		method = "GET"
	}

	props := map[string]any{"url": url, "method": strings.ToUpper(method)}

	headers := map[string]any{}

	for _, h := range p.Get("headerParameters.parameters").Array() {
		value, ok := convertExpression(h.Get("value").String())
		if !ok {
			return mapped{}, false
		}

		headers[h.Get("name").String()] = value
	}

	if len(headers) > 0 {
		props["headers"] = headers
	}

	if body := p.Get("jsonBody"); body.Exists() {
		value, ok := convertExpression(body.String())
		if !ok {
			return mapped{}, false
		}

		props["body"] = value
	} else if params := p.Get("bodyParameters.parameters").Array(); len(params) > 0 {
		body := map[string]any{}

		for _, b := range params {
			value, ok := convertExpression(b.Get("value").String())
			if !ok {
				return mapped{}, false
			}

			body[b.Get("name").String()] = value
		}

		encoded, err := json.Marshal(body)
		if err != nil {
			return mapped{}, false
		}

		props["body"] = string(encoded)
	}

	if timeout := p.Get("options.timeout").Int(); timeout > 0 {
		props["timeout"] = float64(min(max(int64(math.Ceil(float64(timeout)/1000)), 1), 300))
	}

	return mapped{nodeType: "action/http_request", props: props, inputs: 1, outputs: []string{"response"}}, true
}

var operators = map[string]string{
	"equal":      "equals",
	"equals":     "equals",
	"notEqual":   "not_equals",
	"notEquals":  "not_equals",
	"contains":   "contains",
	"larger":     "gt",
	"gt":         "gt",
	"smaller":    "lt",
	"lt":         "lt",
	"isNotEmpty": "exists",
	"exists":     "exists",
	"notEmpty":   "exists",
}

// mapIf converts the first condition of an IF node. Both the flat v1
// layout and the v2 filter layout are read.
func mapIf(p gjson.Result) (mapped, bool) {
	var left, op string

	var right gjson.Result

	if c := p.Get("conditions.conditions.0"); c.Exists() {
		left = c.Get("leftValue").String()
		op = c.Get("operator.operation").String()
		right = c.Get("rightValue")
	} else {
		for _, kind := range []string{"string", "number", "boolean", "dateTime"} {
			if c := p.Get("conditions." + kind + ".0"); c.Exists() {
				left = c.Get("value1").String()
				op = c.Get("operation").String()
				right = c.Get("value2")

				break
			}
		}
	}

	field, ok := jsonField(left)
	if !ok {
		return mapped{}, false
	}

	operator, ok := operators[op]
	if !ok {
		return mapped{}, false
	}

	props := map[string]any{"field": field, "operator": operator}
	if operator != "exists" {
		props["value"] = right.Value()
	}

	return mapped{nodeType: "logic/if", props: props, inputs: 1, outputs: []string{"true", "false"}}, true
}

// mapSwitch handles the rules layout of switch v1 and v2, where every rule
// compares value1 with its value2.
func mapSwitch(p gjson.Result) (mapped, bool) {
	value, ok := convertExpression(p.Get("value1").String())
	if !ok || value == "" {
		return mapped{}, false
	}

	rules := p.Get("rules.rules").Array()
	if len(rules) == 0 {
		return mapped{}, false
	}

	cases := make([]any, 0, len(rules))
	outputs := make([]string, 0, len(rules)+1)

	for i, rule := range rules {
		if op := rule.Get("operation").String(); op != "" && op != "equal" {
			return mapped{}, false
		}

		cases = append(cases, map[string]any{"value": rule.Get("value2").Value()})
		outputs = append(outputs, fmt.Sprintf("case_%d", i))
	}

	outputs = append(outputs, "default")

	return mapped{
		nodeType: "logic/switch",
		props:    map[string]any{"value": value, "cases": cases},
		inputs:   1,
		outputs:  outputs,
	}, true
}

func mapMerge(p gjson.Result) (mapped, bool) {
	var mode string

	switch p.Get("mode").String() {
	case "", "append":
		mode = "array"
	case "chooseBranch":
		mode = "first"
	case "combine", "mergeByIndex", "mergeByKey", "multiplex", "combineByPosition":
		mode = "deep"
	default:
		return mapped{}, false
	}

	inputs := int(p.Get("numberInputs").Int())
	if inputs < 2 {
		inputs = 2
	}

	return mapped{
		nodeType: "logic/merge",
		props:    map[string]any{"mode": mode, "inputs": float64(inputs)},
		inputs:   inputs,
		outputs:  []string{"merged"},
	}, true
}

// mapSet reads the v1 values layout, the v3 fields layout and the v3.3+
// assignments layout.
func mapSet(p gjson.Result) (mapped, bool) {
	fields := map[string]any{}

	add := func(name string, v gjson.Result) bool {
		if name == "" {
			return false
		}

		value, ok := convertValue(v.Value())
		fields[name] = value

		return ok
	}

	for _, kind := range []string{"string", "number", "boolean"} {
		for _, f := range p.Get("values." + kind).Array() {
			if !add(f.Get("name").String(), f.Get("value")) {
				return mapped{}, false
			}
		}
	}

	for _, f := range p.Get("fields.values").Array() {
		v := f.Get("stringValue")
		for _, key := range []string{"numberValue", "booleanValue"} {
			if f.Get(key).Exists() {
				v = f.Get(key)
			}
		}

		if !add(f.Get("name").String(), v) {
			return mapped{}, false
		}
	}

	for _, f := range p.Get("assignments.assignments").Array() {
		if !add(f.Get("name").String(), f.Get("value")) {
			return mapped{}, false
		}
	}

	keep := true
	if p.Get("keepOnlySet").Bool() {
		keep = false
	}

	if include := p.Get("includeOtherFields"); include.Exists() {
		keep = include.Bool()
	}

	return mapped{
		nodeType: "transform/set",
		props:    map[string]any{"fields": fields, "keep_input": keep},
		inputs:   1,
		outputs:  []string{"out"},
	}, true
}

func mapNoOp(gjson.Result) (mapped, bool) {
	return mapped{
		nodeType: "transform/set",
		props:    map[string]any{"fields": map[string]any{}, "keep_input": true},
		inputs:   1,
		outputs:  []string{"out"},
	}, true
}

var (
	jsonRefPattern    = regexp.MustCompile(`\{\{\s*\$json\.([A-Za-z0-9_.]+)\s*\}\}`)
	exprBlockPattern  = regexp.MustCompile(`\{\{.*?\}\}`)
	singleJSONPattern = regexp.MustCompile(`^=\{\{\s*\$json\.([A-Za-z0-9_.]+)\s*\}\}$`)
)

// convertExpression turns n8n expressions ("={{ $json.a.b }}") into
// templates over the node input ("{{.input.a.b}}"). Only $json references
// can be converted; anything else reports false.
func convertExpression(v string) (string, bool) {
	if !strings.HasPrefix(v, "=") {
		return v, true
	}

	out := jsonRefPattern.ReplaceAllString(v[1:], "{{.input.$1}}")

	for _, block := range exprBlockPattern.FindAllString(out, -1) {
		if !strings.HasPrefix(block, "{{.input.") {
			return v, false
		}
	}

	return out, true
}

func convertValue(v any) (any, bool) {
	s, ok := v.(string)
	if !ok {
		return v, true
	}

	return convertExpression(s)
}

// jsonField extracts the input path of a plain "={{ $json.path }}" reference.
func jsonField(v string) (string, bool) {
	m := singleJSONPattern.FindStringSubmatch(v)
	if m == nil {
		return "", false
	}

	return m[1], true
}
