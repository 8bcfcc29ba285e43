package dm

import (
	"fmt"
	"sort"
	"strings"
)

// buildSystemPrompt frames the model as an interviewer for the requested role
// and pins the JSON output contract.
func buildSystemPrompt(req Request) string {
	role := req.RoleID
	if role == "" {
		role = "общей"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Ты интервьюер для роли %s. Отвечай кратко, одним-двумя предложениями.\n", role)
	b.WriteString("Оцени ответ кандидата строго по заданным критериям успеха. Не выдумывай критерии.\n")
	fmt.Fprintf(&b, "Критерии успеха: %s\n", strings.Join(req.Node.SuccessCriteria, ", "))
	b.WriteString("Если ответ слабый, задай один короткий уточняющий вопрос. Если ответ сильный, переходи дальше.\n")
	b.WriteString(`Верни JSON строго по схеме: {"reply": "...", "next_node_id": "...", ` +
		`"scoring_update": {"block": "...", "delta": 0.0, "score": 0.0}, "red_flags": []}`)
	return b.String()
}

// buildUserPrompt serializes the turn context: node, transcript, current
// scores, profile thresholds, and any retrieved CV fragments.
func buildUserPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Текущий узел: %s (блок %s)\n", req.Node.ID, req.Node.Category)
	fmt.Fprintf(&b, "Вопрос: %s\n", req.Node.Question)
	fmt.Fprintf(&b, "Следующий узел при успехе: %s\n", orNone(req.Node.NextIfPass))
	fmt.Fprintf(&b, "Следующий узел при неудаче: %s\n", orNone(req.Node.NextIfFail))
	if req.Node.NextIfEquivalent != "" {
		fmt.Fprintf(&b, "Узел эквивалентного навыка: %s\n", req.Node.NextIfEquivalent)
	}

	fmt.Fprintf(&b, "\nОтвет кандидата: %q\n", req.Transcript)

	if len(req.Scores) > 0 {
		blocks := make([]string, 0, len(req.Scores))
		for block := range req.Scores {
			blocks = append(blocks, block)
		}
		sort.Strings(blocks)
		b.WriteString("\nТекущие оценки по блокам:\n")
		for _, block := range blocks {
			fmt.Fprintf(&b, "  %s: %.2f\n", block, req.Scores[block])
		}
	}

	if req.Profile != nil {
		fmt.Fprintf(&b, "\nПороги роли: pass %.2f, drill %.2f\n",
			req.Profile.Thresholds.Pass, req.Profile.Thresholds.Drill)
	}

	if len(req.CVContext) > 0 {
		b.WriteString("\nФрагменты резюме кандидата:\n")
		for _, r := range req.CVContext {
			fmt.Fprintf(&b, "  - %s\n", r.Chunk.Content)
		}
	}

	b.WriteString("\nОцени ответ и верни JSON.")
	return b.String()
}

func orNone(id string) string {
	if id == "" {
		return "нет (завершение)"
	}
	return id
}

// ReplySchema returns the JSON schema for the turn reply contract. Backends
// with grammar support compile it into a constrained decoder; other backends
// ignore it and the engine validates the text instead.
func ReplySchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reply": map[string]any{
				"type": "string",
			},
			"next_node_id": map[string]any{
				"type": "string",
			},
			"scoring_update": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"block": map[string]any{"type": "string"},
					"delta": map[string]any{"type": "number"},
					"score": map[string]any{
						"type":    "number",
						"minimum": 0,
						"maximum": 1,
					},
				},
				"required":             []string{"block", "delta", "score"},
				"additionalProperties": false,
			},
			"red_flags": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required":             []string{"reply", "next_node_id", "scoring_update", "red_flags"},
		"additionalProperties": false,
	}
}
