package models

// DietMetrics summarizes a user's meal log.
type DietMetrics struct {
	TotalMeals   int `json:"totalMeals"`
	MealsOnDiet  int `json:"mealsOnDiet"`
	MealsOffDiet int `json:"mealsOffDiet"`
	BestStreak   int `json:"bestStreak"`
}

// ComputeMetrics folds an on-diet flag sequence, in creation order, into DietMetrics.
// An off-diet meal resets the running streak; BestStreak is the longest run of on-diet meals.
func ComputeMetrics(onDiet []bool) DietMetrics {
	var m DietMetrics
	current := 0
	for _, ok := range onDiet {
		m.TotalMeals++
		if ok {
			m.MealsOnDiet++
			current++
			if current > m.BestStreak {
				m.BestStreak = current
			}
			continue
		}
		m.MealsOffDiet++
		current = 0
	}
	return m
}

// ComputeMealMetrics is ComputeMetrics over meals already sorted by creation time.
func ComputeMealMetrics(meals []Meal) DietMetrics {
	flags := make([]bool, len(meals))
	for i := range meals {
		flags[i] = meals[i].IsOnDiet
	}
	return ComputeMetrics(flags)
}
