package main

import "math"

// dbLevelsPerDB is the resolution of fader levels: one integer level per 0.01 dB.
const dbLevelsPerDB = 100

// dbToLevel maps a fader value in dB onto integer levels counted from minDB.
//
// Notes:
//   - values are not clamped: below minDB gives a negative level, above maxDB a level
//     past dbMaxLevel, so a change anywhere on the fader is still a level change
//   - equal levels mean the fader moved by less than 0.005 dB
func dbToLevel(db, minDB float64) int {
	return int(math.Round((db - minDB) * dbLevelsPerDB))
}

// dbMaxLevel is the level reported for maxDB.
func dbMaxLevel(minDB, maxDB float64) int {
	if maxDB <= minDB {
		return 0
	}
	return dbToLevel(maxDB, minDB)
}
