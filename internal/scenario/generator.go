package scenario

import "fmt"

// Generate synthesizes a minimal three-node interview chain for the given
// category: an intro question that branches to either a basics probe (on a
// weak answer) or an advanced probe (on a strong one). Both probes are
// terminal. The result always passes [Scenario.Validate].
func Generate(category string) *Scenario {
	intro := category + "_l1_intro"
	basics := category + "_l2_basics"
	advanced := category + "_l3_advanced"

	sc := &Scenario{
		ID:            category,
		SchemaVersion: CurrentSchemaVersion,
		Policy:        Policy{DrillThreshold: DefaultDrillThreshold},
		StartID:       intro,
		Nodes: []Node{
			{
				ID:              intro,
				Category:        category,
				Order:           1,
				Question:        fmt.Sprintf("Расскажите о вашем опыте работы с %s.", category),
				Weight:          1.0,
				SuccessCriteria: []string{"опыт", "проекты", "навыки"},
				Followups:       []string{"Какие задачи вы решали чаще всего?"},
				NextIfPass:      advanced,
				NextIfFail:      basics,
			},
			{
				ID:              basics,
				Category:        category,
				Order:           2,
				Question:        fmt.Sprintf("Опишите базовые понятия и инструменты в области %s.", category),
				Weight:          0.8,
				SuccessCriteria: []string{"понимаю", "использовал", "инструменты"},
			},
			{
				ID:              advanced,
				Category:        category,
				Order:           3,
				Question:        fmt.Sprintf("Расскажите о сложном проекте с %s: архитектура, узкие места, выводы.", category),
				Weight:          1.0,
				SuccessCriteria: []string{"архитектура", "оптимизация", "масштабирование"},
			},
		},
	}

	// Validation cannot fail on this fixed shape; run it to build the index.
	if err := sc.Validate(); err != nil {
		panic(fmt.Sprintf("scenario: generated fallback is invalid: %v", err))
	}
	return sc
}
