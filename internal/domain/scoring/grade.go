package scoring

import "github.com/avetra/prospect/internal/domain/model"

// Grade band lower bounds, 5 points apart; anything below failingBound fails.
const (
	topBound     = 90
	failingBound = 55
	bandWidth    = 5
)

// gradeBands pairs each lower bound with its grade, best first.
var gradeBands = []struct {
	bound int
	grade model.Grade
}{
	{topBound, model.GradeAPlus},
	{topBound - bandWidth, model.GradeA},
	{topBound - 2*bandWidth, model.GradeAMinus},
	{topBound - 3*bandWidth, model.GradeBPlus},
	{topBound - 4*bandWidth, model.GradeB},
	{topBound - 5*bandWidth, model.GradeBMinus},
	{topBound - 6*bandWidth, model.GradeCPlus},
	{failingBound, model.GradeC},
}

// GradeFor maps an overall score to its ordinal grade bucket.
func GradeFor(overall int) model.Grade {
	for _, band := range gradeBands {
		if overall >= band.bound {
			return band.grade
		}
	}
	return model.GradeF
}
