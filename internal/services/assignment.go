package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/soaringjerry/whenwhy/internal/models"
)

// ConditionCount is the number of main tasks every participant runs.
const ConditionCount = 4

var baseConditions = [ConditionCount]models.Condition{
	{Timing: models.TimingJIT, Reflection: models.ReflectionRequired},
	{Timing: models.TimingJIT, Reflection: models.ReflectionOptional},
	{Timing: models.TimingAlwaysOn, Reflection: models.ReflectionRequired},
	{Timing: models.TimingAlwaysOn, Reflection: models.ReflectionOptional},
}

var latinSquare = [ConditionCount][ConditionCount]int{
	{0, 1, 2, 3},
	{1, 2, 3, 0},
	{2, 3, 0, 1},
	{3, 0, 1, 2},
}

// AssignConditions returns the condition order for the participant created
// after ordinal others. The result depends on ordinal mod 4 only.
func AssignConditions(ordinal int) models.ConditionOrder {
	group := ordinal % ConditionCount
	if group < 0 {
		group += ConditionCount
	}
	order := make(models.ConditionOrder, 0, ConditionCount)
	for slot, idx := range latinSquare[group] {
		order = append(order, models.AssignedCondition{Condition: baseConditions[idx], TaskID: slot + 1})
	}
	return order
}

// ParticipantIDFor formats the public id, P001 for ordinal 0.
func ParticipantIDFor(ordinal int) string {
	return fmt.Sprintf("P%03d", ordinal+1)
}

// Assign is the allocation callback handed to SessionStore.CreateParticipant.
func Assign(ordinal int) (string, models.ConditionOrder) {
	return ParticipantIDFor(ordinal), AssignConditions(ordinal)
}

// OrdinalFromID inverts ParticipantIDFor. Stores use it on import so newly
// created participants continue after the imported ones.
func OrdinalFromID(id string) (int, bool) {
	if !strings.HasPrefix(id, "P") {
		return 0, false
	}
	n, err := strconv.Atoi(id[1:])
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}
