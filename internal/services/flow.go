package services

import "github.com/soaringjerry/whenwhy/internal/models"

var phaseSequence = []models.Phase{
	models.PhaseConsent,
	models.PhasePreSurvey,
	models.PhaseTutorial,
	models.PhaseExperiment,
	models.PhaseTransfer,
	models.PhasePostSurvey,
	models.PhaseComplete,
}

// Flow tracks a participant's linear progress through the study. There is no
// way back.
type Flow struct {
	Phase          models.Phase
	ConditionIndex int
	Order          models.ConditionOrder
}

func NewFlow(order models.ConditionOrder) *Flow {
	return &Flow{Phase: models.PhaseConsent, Order: order}
}

func phaseIndex(p models.Phase) int {
	for i, v := range phaseSequence {
		if v == p {
			return i
		}
	}
	return -1
}

// AdvancePhase moves to the next phase.
func (f *Flow) AdvancePhase() error {
	i := phaseIndex(f.Phase)
	if i < 0 || i == len(phaseSequence)-1 {
		return ErrWrongPhase
	}
	next := phaseSequence[i+1]
	if next == models.PhaseExperiment && len(f.Order) != ConditionCount {
		return NewInvalidError("study.condition_order_missing")
	}
	f.Phase = next
	if next == models.PhaseExperiment {
		f.ConditionIndex = 0
	}
	return nil
}

// AdvanceCondition moves to the next main task, or into Transfer after the
// last one.
func (f *Flow) AdvanceCondition() error {
	if f.Phase != models.PhaseExperiment {
		return ErrWrongPhase
	}
	if f.ConditionIndex < len(f.Order)-1 {
		f.ConditionIndex++
		return nil
	}
	f.ConditionIndex = len(f.Order)
	f.Phase = models.PhaseTransfer
	return nil
}

// CurrentCondition is valid only during Experiment.
func (f *Flow) CurrentCondition() (models.AssignedCondition, bool) {
	if f.Phase != models.PhaseExperiment || f.ConditionIndex < 0 || f.ConditionIndex >= len(f.Order) {
		return models.AssignedCondition{}, false
	}
	return f.Order[f.ConditionIndex], true
}
