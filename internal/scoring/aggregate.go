package scoring

import "sort"

// QAnswer is one scored interview answer attributed to a competence block.
type QAnswer struct {
	QuestionID string  `json:"question_id"`
	Block      string  `json:"block"`
	Score      float64 `json:"score"`
	Weight     float64 `json:"weight"`
}

// ScoreBlock computes the weighted mean score of the answers belonging to
// block, with weights normalized within the block. Returns 0 when the block
// has no answers.
func ScoreBlock(answers []QAnswer, block string) float64 {
	var sum, weight float64
	for _, a := range answers {
		if a.Block != block {
			continue
		}
		sum += a.Score * a.Weight
		weight += a.Weight
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

// ScoreBlocks computes per-block scores for every block present in answers.
func ScoreBlocks(answers []QAnswer) map[string]float64 {
	weights := make(map[string]float64)
	sums := make(map[string]float64)
	for _, a := range answers {
		sums[a.Block] += a.Score * a.Weight
		weights[a.Block] += a.Weight
	}
	scores := make(map[string]float64, len(sums))
	for block, sum := range sums {
		if w := weights[block]; w > 0 {
			scores[block] = sum / w
		} else {
			scores[block] = 0
		}
	}
	return scores
}

// ScoreOverall folds per-block scores into a single role-weighted score.
// Blocks absent from blockWeights are ignored; blocks present in the weights
// but not yet scored contribute 0.
func ScoreOverall(blockScores, blockWeights map[string]float64) float64 {
	var overall float64
	for block, w := range blockWeights {
		overall += blockScores[block] * w
	}
	return clamp01(overall)
}

// Analysis summarizes a candidate's performance across blocks.
type Analysis struct {
	Strengths    []string `json:"strengths"`
	Weaknesses   []string `json:"weaknesses"`
	OverallLevel string   `json:"overall_level"`
}

// AnalyzePerformance buckets blocks into strengths (score >= 0.7) and
// weaknesses (< 0.7) and labels the overall score.
func AnalyzePerformance(blockScores map[string]float64, overall float64) Analysis {
	a := Analysis{OverallLevel: OverallLevel(overall)}
	for block, score := range blockScores {
		if score >= 0.7 {
			a.Strengths = append(a.Strengths, block)
		} else {
			a.Weaknesses = append(a.Weaknesses, block)
		}
	}
	sort.Strings(a.Strengths)
	sort.Strings(a.Weaknesses)
	return a
}

// OverallLevel maps an overall score onto a qualitative band.
func OverallLevel(overall float64) string {
	switch {
	case overall < 0.3:
		return "Below"
	case overall < 0.7:
		return "Approaching"
	case overall < 0.85:
		return "Meets"
	default:
		return "Exceeds"
	}
}

// MatchScore measures how well a candidate's block scores cover a role's
// requirements: sum of min(candidate, required) per block, weighted and
// normalized by the weighted requirement total. Clamped to [0, 1].
func MatchScore(candidate, required, weights map[string]float64) float64 {
	var got, want float64
	for block, req := range required {
		w, ok := weights[block]
		if !ok {
			w = 1
		}
		got += min(candidate[block], req) * w
		want += req * w
	}
	if want == 0 {
		return 0
	}
	return clamp01(got / want)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
