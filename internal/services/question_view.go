package services

import (
	"sort"

	"github.com/edulab/quiz-engine/internal/models"
)

// sanitizeQuestions projects questions into their student-facing shape,
// stripping the correct flag from every answer.
func sanitizeQuestions(questions []*models.Question) []QuestionForWrite {
	out := make([]QuestionForWrite, len(questions))
	for i, q := range questions {
		answers := make([]AnswerOption, len(q.Answers))
		for j, a := range q.Answers {
			answers[j] = AnswerOption{ID: a.ID, Text: a.Text}
		}
		out[i] = QuestionForWrite{
			QuestionID: q.ID,
			Text:       q.Text,
			Answers:    answers,
		}
	}
	return out
}

// sortByQuestionNumber orders questions by their authored number, falling back
// to id for stable ties. The input slice is not modified.
func sortByQuestionNumber(questions []*models.Question) []*models.Question {
	out := make([]*models.Question, len(questions))
	copy(out, questions)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].QuestionNumber != out[j].QuestionNumber {
			return out[i].QuestionNumber < out[j].QuestionNumber
		}
		return out[i].ID < out[j].ID
	})
	return out
}
