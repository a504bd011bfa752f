package store

import "github.com/tuklasdigitallabs/qsys2025-working/internal/models"

var transitionMap = map[string][]string{
	"call":   {models.StatusWaiting},
	"uncall": {models.StatusCalled},
	"seat":   {models.StatusCalled, models.StatusWaiting},
	"skip":   {models.StatusWaiting, models.StatusCalled},
	"cancel": {models.StatusWaiting, models.StatusCalled},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
