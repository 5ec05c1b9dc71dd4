package models

import (
	"time"

	"github.com/google/uuid"
)

// Границы оценки
const (
	MinScore = 1
	MaxScore = 5
)

// Rating представляет оценку одного участника обмена другому (calificación)
type Rating struct {
	ID        uuid.UUID `json:"id"`
	TradeID   uuid.UUID `json:"trade_id"`
	RaterID   uuid.UUID `json:"rater_id"`
	RatedID   uuid.UUID `json:"rated_id"`
	Score     int       `json:"score"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Rater *PublicUser `json:"rater,omitempty"`
}

// Reputation агрегирует полученные пользователем оценки
type Reputation struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// ComputeReputation считает среднюю оценку с округлением до сотых
func ComputeReputation(ratings []Rating) Reputation {
	if len(ratings) == 0 {
		return Reputation{}
	}
	total := 0
	for _, r := range ratings {
		total += r.Score
	}
	avg := float64(total) / float64(len(ratings))
	return Reputation{
		Average: float64(int(avg*100+0.5)) / 100,
		Count:   len(ratings),
	}
}
