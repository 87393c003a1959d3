// Package template renders action configuration values against the
// execution context, so step configs can reference record fields and
// variables produced by earlier steps.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/fieldflow/fieldflow/pkg/models"
)

// RenderWithContext renders a template string against the execution
// context. Templates see the record under .record, the pre-update snapshot
// under .previous, variables under .variables (alias .vars), and the
// execution identity under .execution.
func RenderWithContext(input string, executionCtx models.ExecutionContext) (any, error) {
	data := map[string]any{
		"record":      executionCtx.RecordData,
		"previous":    executionCtx.PreviousData,
		"variables":   executionCtx.Variables,
		"vars":        executionCtx.Variables,
		"metadata":    executionCtx.Metadata,
		"env":         getEnvVars(),
		"record_id":   executionCtx.RecordID,
		"record_type": executionCtx.RecordType,
		"execution": map[string]any{
			"id":           executionCtx.ID,
			"workflow_id":  executionCtx.WorkflowID,
			"trigger_type": string(executionCtx.TriggerType),
		},
	}

	return Render(input, data)
}

// RenderString is RenderWithContext constrained to a string result: JSON
// and scalar re-parsing is skipped.
func RenderString(input string, executionCtx models.ExecutionContext) (string, error) {
	rendered, err := RenderWithContext(input, executionCtx)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%v", rendered), nil
}

// Render executes the template against arbitrary data. Output that looks
// like JSON, a number, or a boolean is re-parsed into the typed value.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("config").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(limit int) int {
				if limit <= 0 {
					return 0
				}

				num := make([]byte, 1)
				if _, err := rand.Read(num); err != nil {
					return 0
				}

				return int(num[0]) % limit
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any
		if err := json.Unmarshal([]byte(result), &jsonResult); err == nil {
			return jsonResult, nil
		}
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderMap renders every string value of a config map, recursing into
// nested maps. Non-string values pass through untouched.
func RenderMap(config map[string]any, executionCtx models.ExecutionContext) (map[string]any, error) {
	rendered := make(map[string]any, len(config))

	for key, value := range config {
		switch typed := value.(type) {
		case string:
			out, err := RenderWithContext(typed, executionCtx)
			if err != nil {
				return nil, err
			}

			rendered[key] = out
		case map[string]any:
			out, err := RenderMap(typed, executionCtx)
			if err != nil {
				return nil, err
			}

			rendered[key] = out
		default:
			rendered[key] = value
		}
	}

	return rendered, nil
}

func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
