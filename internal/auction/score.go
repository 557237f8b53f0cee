package auction

import "time"

// Score computes a bid's ordering key:
//
//	alpha*price + beta/(responseTime+1) + gamma*weight
//
// It is a pure function: equal inputs yield bitwise-equal outputs. For
// fixed other inputs it is strictly increasing in price and strictly
// decreasing in responseTime.
func Score(alpha, beta, gamma, price, responseTime, weight float64) float64 {
	return alpha*price + beta/(responseTime+1) + gamma*weight
}

// ResponseSeconds returns the bid's response time in seconds relative to
// the session start, clamped to >= 0 so that clock skew around the start
// boundary can never produce a negative time bonus.
func ResponseSeconds(now, start time.Time) float64 {
	t := now.Sub(start).Seconds()
	if t < 0 {
		return 0
	}
	return t
}
