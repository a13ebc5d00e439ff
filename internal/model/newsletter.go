package model

import "time"

// Subscriber はニュースレターの購読者を表す。
type Subscriber struct {
	ID               string
	Email            string
	Source           string // 登録元（landing, footer 等）
	UnsubscribeToken string
	SubscribedAt     time.Time
	UnsubscribedAt   *time.Time
}

// Active は購読が有効かどうかを返す。
func (s *Subscriber) Active() bool {
	return s.UnsubscribedAt == nil
}
