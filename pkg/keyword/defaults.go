package keyword

// DefaultRules is the global rule set installed by the seed command.
func DefaultRules() []Rule {
	var rules []Rule
	add := func(priority int, desc string, words ...string) {
		for _, w := range words {
			rules = append(rules, Rule{
				Keyword:     w,
				MatchType:   MatchContains,
				Priority:    priority,
				WholeWord:   true,
				Description: desc,
				Active:      true,
			})
		}
	}

	add(5, "Situação de risco imediato",
		"preso", "presa", "fogo", "fumaça", "fumaca", "socorro", "queda", "caiu",
		"explosão", "explosao", "gás", "gas")
	add(4, "Possível emergência médica",
		"ferido", "ferida", "sangue", "desmaio", "desmaiou", "emergência", "emergencia")

	rules = append(rules, Rule{
		Keyword:     `elevador (parado|travado|preso)`,
		MatchType:   MatchRegex,
		Priority:    5,
		Description: "Elevador parado com possível pessoa presa",
		Active:      true,
	})
	return rules
}
