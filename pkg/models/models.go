package models

// Question estructura para representar una pregunta del duelo
type Question struct {
	ID          int               `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Question    string            `json:"question" gorm:"not null"`
	Options     map[string]string `json:"options" gorm:"serializer:json;type:jsonb;not null"`
	Correct     string            `json:"correctAnswer" gorm:"type:varchar(1);not null"`
	Explanation string            `json:"explanation"`
	Difficulty  int               `json:"difficulty"`
}

// OptionKeys son las cuatro opciones válidas de cada pregunta
var OptionKeys = []string{"A", "B", "C", "D"}

// QuestionsData estructura para el JSON completo
type QuestionsData struct {
	Questions []Question `json:"questions"`
	Metadata  struct {
		Total       int    `json:"totalQuestions"`
		Version     string `json:"version"`
		LastUpdated string `json:"lastUpdated"`
		Description string `json:"description"`
	} `json:"metadata"`
}

// APIResponse estructura estándar para respuestas de API
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

// QuestionResponse respuesta específica para preguntas
type QuestionResponse struct {
	Question  *Question  `json:"question,omitempty"`
	Questions []Question `json:"questions,omitempty"`
	Count     int        `json:"count,omitempty"`
}
