package server

import (
	"net/http"

	"github.com/Maratmain/ai-hr/internal/scoring"
)

type aggregateRequest struct {
	Answers      []scoring.QAnswer  `json:"answers"`
	BlockWeights map[string]float64 `json:"block_weights"`
}

type aggregateSummary struct {
	TotalQuestions int     `json:"total_questions"`
	BlocksAssessed int     `json:"blocks_assessed"`
	AverageScore   float64 `json:"average_score"`
}

type aggregateResponse struct {
	BlockScores       map[string]float64 `json:"block_scores"`
	Overall           float64            `json:"overall"`
	OverallPercentage float64            `json:"overall_percentage"`
	Analysis          scoring.Analysis   `json:"analysis"`
	Summary           aggregateSummary   `json:"summary"`
}

func (s *Server) handleScoreAggregate(w http.ResponseWriter, r *http.Request) {
	var req aggregateRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid aggregate body: "+err.Error())
		return
	}
	if len(req.Answers) == 0 {
		badRequest(w, "answers must not be empty")
		return
	}
	for _, a := range req.Answers {
		if a.Score < 0 || a.Score > 1 || a.Weight < 0 || a.Weight > 1 {
			badRequest(w, "answer scores and weights must be in [0, 1]")
			return
		}
	}

	blockScores := scoring.ScoreBlocks(req.Answers)
	overall := scoring.ScoreOverall(blockScores, req.BlockWeights)

	var sum float64
	for _, a := range req.Answers {
		sum += a.Score
	}

	writeJSON(w, http.StatusOK, aggregateResponse{
		BlockScores:       blockScores,
		Overall:           overall,
		OverallPercentage: overall * 100,
		Analysis:          scoring.AnalyzePerformance(blockScores, overall),
		Summary: aggregateSummary{
			TotalQuestions: len(req.Answers),
			BlocksAssessed: len(blockScores),
			AverageScore:   sum / float64(len(req.Answers)),
		},
	})
}
