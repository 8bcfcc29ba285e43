package dm

import "hash/fnv"

// replyBands groups heuristic reply templates by answer quality.
type replyBands struct {
	positive []string // score >= 0.7
	neutral  []string // 0.4 <= score < 0.7
	negative []string // score < 0.4
}

// roleReplies holds role-specific heuristic replies. Roles without an entry
// fall back to genericReplies.
var roleReplies = map[string]replyBands{
	"python_backend": {
		positive: []string{
			"Отлично, видно уверенное владение Python. Двигаемся дальше.",
			"Хороший ответ, опыт чувствуется. Продолжим.",
		},
		neutral: []string{
			"Понял. Расскажите подробнее, какие инструменты вы использовали?",
			"Уточните, пожалуйста, на каких проектах вы это применяли?",
		},
		negative: []string{
			"Понял, но нужны детали. Приведите конкретный пример из практики.",
		},
	},
	"data_analyst": {
		positive: []string{
			"Хорошо, подход к данным понятен. Идём дальше.",
		},
		neutral: []string{
			"Уточните, пожалуйста, какими методами анализа вы пользовались?",
		},
		negative: []string{
			"Понял, но хотелось бы конкретики: какие данные и какие выводы?",
		},
	},
	"devops": {
		positive: []string{
			"Отлично, инфраструктурный опыт очевиден. Продолжим.",
		},
		neutral: []string{
			"Уточните, пожалуйста, как вы организовывали развертывание?",
		},
		negative: []string{
			"Понял, но нужны детали по инструментам и процессу.",
		},
	},
}

// genericReplies is used when the role has no dedicated table.
var genericReplies = replyBands{
	positive: []string{"Понимаю. Двигаемся дальше."},
	neutral:  []string{"Уточните, пожалуйста."},
	negative: []string{"Понял, но нужны детали."},
}

// TemplateReply returns a heuristic interviewer reply for the given role and
// score band. The pick is deterministic for identical input: the transcript
// hash selects within the band, so repeated runs of the same turn produce the
// same reply while different answers still see some variety.
func TemplateReply(roleID, transcript string, score float64) string {
	bands, ok := roleReplies[roleID]
	if !ok {
		bands = genericReplies
	}

	var pool []string
	switch {
	case score >= 0.7:
		pool = bands.positive
	case score >= 0.4:
		pool = bands.neutral
	default:
		pool = bands.negative
	}
	if len(pool) == 0 {
		pool = genericReplies.neutral
	}

	h := fnv.New32a()
	h.Write([]byte(transcript))
	return pool[int(h.Sum32())%len(pool)]
}
