// Package notifications persists and delivers billing notifications to
// tenant users. Storage is the source of truth; real-time delivery is best
// effort and a delivery failure never fails the send.
package notifications
