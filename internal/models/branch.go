package models

import "time"

type Branch struct {
	BranchID     string `json:"branch_id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	Code         string `json:"code"`
	Timezone     string `json:"timezone"`
	CodePadWidth int    `json:"code_pad_width"`
	Active       bool   `json:"active"`
}

// Location resolves the branch IANA time zone, falling back to UTC+8
// when the zone database entry is unavailable.
func (b Branch) Location() *time.Location {
	if b.Timezone == "" {
		return time.FixedZone("UTC+8", 8*3600)
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.FixedZone("UTC+8", 8*3600)
	}
	return loc
}
