package store

import (
	"fmt"

	"github.com/tuklasdigitallabs/qsys2025-working/internal/models"
)

// GroupForParty assigns a queue group from party composition. Senior
// and PWD parties always route to the priority group regardless of size.
func GroupForParty(pax int, seniorPWD bool) string {
	if seniorPWD {
		return models.GroupPriority
	}
	if pax <= 2 {
		return models.GroupSmall
	}
	if pax <= 4 {
		return models.GroupMedium
	}
	return models.GroupLarge
}

// FormatQueueCode renders a queue code like A03. The number is
// zero-padded to padWidth but never truncated.
func FormatQueueCode(group string, number int64, padWidth int) string {
	if padWidth < 2 {
		padWidth = 2
	}
	return fmt.Sprintf("%s%0*d", group, padWidth, number)
}
