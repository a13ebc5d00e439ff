package model

import "time"

// RiskProfile はチャットのヒントに使うリスク許容度。
type RiskProfile string

const (
	// RiskConservative は保守的なリスク許容度。
	RiskConservative RiskProfile = "conservative"
	// RiskModerate は中程度のリスク許容度。
	RiskModerate RiskProfile = "moderate"
	// RiskAggressive は積極的なリスク許容度。
	RiskAggressive RiskProfile = "aggressive"
)

// Valid はリスク許容度が定義済みの値かを返す。
func (r RiskProfile) Valid() bool {
	switch r {
	case RiskConservative, RiskModerate, RiskAggressive:
		return true
	default:
		return false
	}
}

// Profile はユーザーのプロフィールを表す。
type Profile struct {
	UserID      string
	DisplayName string
	RiskProfile RiskProfile
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Identity はIDプロバイダーが解決した認証済みユーザーを表す。
type Identity struct {
	UserID string
	Email  string
}
