package model

// Option is a multiple-choice answer letter.
type Option string

const (
	OptionA Option = "A"
	OptionB Option = "B"
	OptionC Option = "C"
	OptionD Option = "D"
)

// Options lists the valid letters in display order.
var Options = [4]Option{OptionA, OptionB, OptionC, OptionD}

// Valid reports whether o is one of A–D.
func (o Option) Valid() bool {
	switch o {
	case OptionA, OptionB, OptionC, OptionD:
		return true
	}
	return false
}

// Question is a single exam question. The set is shared read-only by all sessions.
type Question struct {
	ID            int       `json:"id"`
	Text          string    `json:"text"`
	Options       [4]string `json:"options"`
	CorrectOption Option    `json:"correct_option"`
}

// QuestionForStudent is the student-facing projection without the answer key.
type QuestionForStudent struct {
	ID      int       `json:"id"`
	Text    string    `json:"text"`
	Options [4]string `json:"options"`
}

// ForStudent strips the answer key.
func (q Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{ID: q.ID, Text: q.Text, Options: q.Options}
}

// SeedQuestion is the JSON shape accepted by the seed command.
type SeedQuestion struct {
	ID            int      `json:"id" validate:"required,gt=0"`
	Text          string   `json:"text" validate:"required"`
	Options       []string `json:"options" validate:"len=4,dive,required"`
	CorrectOption Option   `json:"correct_option" validate:"required,option_letter"`
}
