package game

import (
	"strconv"
	"strings"
)

const (
	POCKET_COUNT      = 37 // single-zero wheel
	ZERO_PAYOUT_RATIO = 35
)

// WheelOrder is the clockwise pocket order of a European wheel. It only
// drives rendering; every pocket is drawn with equal weight.
var WheelOrder = [POCKET_COUNT]int{
	0, 32, 15, 19, 4, 21, 2, 25, 17, 34, 6, 27, 13, 36, 11, 30, 8, 23, 10,
	5, 24, 16, 33, 1, 20, 14, 31, 9, 22, 18, 29, 7, 28, 12, 35, 3, 26,
}

var Rules = []string{
	"Enter your bet amount",
	`Click the "Spin" button`,
	"If the ball lands on 0, you win 35 times your bet!",
	"Any other number, and you lose your bet",
}

var redPockets = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true,
	12: true, 14: true, 16: true, 18: true, 19: true,
	21: true, 23: true, 25: true, 27: true, 30: true,
	32: true, 34: true, 36: true,
}

type Pocket struct {
	Number int     `json:"number"`
	Color  string  `json:"color"`
	Angle  float64 `json:"angle"`
}

// PocketIndex returns the position of n on the wheel, or -1.
func PocketIndex(n int) int {
	for i, p := range WheelOrder {
		if p == n {
			return i
		}
	}
	return -1
}

// PocketAngle is the rotation in degrees of pocket n from the top of the wheel.
func PocketAngle(n int) float64 {
	idx := PocketIndex(n)
	if idx < 0 {
		return 0
	}
	return float64(idx) * (360.0 / POCKET_COUNT)
}

func PocketColor(n int) string {
	switch {
	case n == 0:
		return "green"
	case redPockets[n]:
		return "red"
	case n > 0 && n < POCKET_COUNT:
		return "black"
	}
	return ""
}

// Layout lists the pockets in wheel order.
func Layout() []Pocket {
	out := make([]Pocket, 0, POCKET_COUNT)
	for _, n := range WheelOrder {
		out = append(out, Pocket{Number: n, Color: PocketColor(n), Angle: PocketAngle(n)})
	}
	return out
}

// ParseBet coerces free-form input into a bet the way the bet field does:
// anything unparseable becomes 0 and negatives are clamped to 0.
func ParseBet(raw string) int64 {
	raw = strings.TrimSpace(raw)
	end := 0
	for end < len(raw) && (raw[end] >= '0' && raw[end] <= '9' || (end == 0 && (raw[0] == '-' || raw[0] == '+'))) {
		end++
	}
	v, err := strconv.ParseInt(raw[:end], 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
