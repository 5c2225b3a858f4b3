package models

// Question is a single quiz question, consumed read-only from the question
// bank. The core never mutates question content.
type Question struct {
	ID            string   `json:"id" yaml:"id"`
	Category      string   `json:"category" yaml:"category"`
	Question      string   `json:"question" yaml:"question"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer int      `json:"correct_answer" yaml:"correct_answer"`
	Explanation   string   `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// IsCorrect reports whether the submitted option index answers the question.
// The AnswerNone sentinel is never correct.
func (q *Question) IsCorrect(answer int) bool {
	return answer >= 0 && answer == q.CorrectAnswer
}
