package services

import (
	"strings"

	"github.com/soaringjerry/whenwhy/internal/models"
)

const (
	MinAge        = 18
	MaxAge        = 100
	LikertMin     = 1
	LikertMax     = 7
	AgencyItems   = 6
	LoadItems     = 3
	RankingLength = ConditionCount
)

func ValidateDemographics(d models.Demographics) error {
	if d.Age < MinAge || d.Age > MaxAge {
		return NewInvalidError("validation.age_range")
	}
	if strings.TrimSpace(d.Gender) == "" {
		return NewInvalidError("validation.gender_required")
	}
	if strings.TrimSpace(d.AcademicLevel) == "" {
		return NewInvalidError("validation.academic_level_required")
	}
	if strings.TrimSpace(d.Major) == "" {
		return NewInvalidError("validation.major_required")
	}
	// Familiarity scales are optional but must be on the 1..7 scale when given.
	if d.DataScienceFamiliarity != 0 && !onLikert(d.DataScienceFamiliarity) {
		return NewInvalidError("validation.likert_range")
	}
	if d.AIExperience != 0 && !onLikert(d.AIExperience) {
		return NewInvalidError("validation.likert_range")
	}
	return nil
}

func ValidateQuestionnaire(q models.Questionnaire) error {
	if len(q.Agency) != AgencyItems || len(q.CognitiveLoad) != LoadItems {
		return NewInvalidError("validation.questionnaire_incomplete")
	}
	for _, v := range q.Agency {
		if !onLikert(v) {
			return NewInvalidError("validation.likert_range")
		}
	}
	for _, v := range q.CognitiveLoad {
		if !onLikert(v) {
			return NewInvalidError("validation.likert_range")
		}
	}
	if !onLikert(q.Dependence) {
		return NewInvalidError("validation.likert_range")
	}
	return nil
}

// ValidatePostStudy requires the condition ranking to be a permutation of 1..4.
func ValidatePostStudy(p models.PostStudy) error {
	if len(p.ConditionPreference) != RankingLength {
		return NewInvalidError("validation.ranking_permutation")
	}
	seen := make([]bool, RankingLength+1)
	for _, r := range p.ConditionPreference {
		if r < 1 || r > RankingLength || seen[r] {
			return NewInvalidError("validation.ranking_permutation")
		}
		seen[r] = true
	}
	if !onLikert(p.LearningRating) || !onLikert(p.UsefulnessRating) {
		return NewInvalidError("validation.likert_range")
	}
	return nil
}

func onLikert(v int) bool { return v >= LikertMin && v <= LikertMax }
