package forecast

import (
	"fmt"

	"github.com/inferloop/salesforecast/internal/aggregate"
	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/errors"
	"github.com/inferloop/salesforecast/pkg/models"
)

// NormalizeScenario canonicalizes scenario codes. "None", blanks and other
// missing markers clear a flag; any other code outside the known classes is
// ErrInvalidScenario.
func NormalizeScenario(s models.Scenario) (models.Scenario, error) {
	promo := aggregate.NormalizeCode(s.Promotion)
	if promo != "" && !contains(constants.PromotionClasses, promo) {
		return models.Scenario{}, errors.NewScenarioError(
			fmt.Sprintf("unknown promotion %q, want one of %v", s.Promotion, constants.PromotionClasses))
	}
	holiday := aggregate.NormalizeCode(s.Holiday)
	if holiday != "" && !contains(constants.HolidayClasses, holiday) {
		return models.Scenario{}, errors.NewScenarioError(
			fmt.Sprintf("unknown holiday %q, want one of %v", s.Holiday, constants.HolidayClasses))
	}
	return models.Scenario{Promotion: promo, Holiday: holiday}, nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
