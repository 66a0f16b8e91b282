package games

// Scattergories (Stadt, Land, Fluss)
// Each round, every player fills in one answer per category, all starting
// with the round's letter
// The host picks the categories (up to ten) before the round starts
// Letters never repeat within a session; after 26 rounds the alphabet is done
// Scoring compares answers per category:
// - Only player with any answer: 10 points
// - Answer nobody else wrote, several players answered: 20 points
// - Answer shared with someone else: 5 points each
// The host ends the round, everyone sees the scored answers, and the
// running leaderboard adds up all closed rounds plus the current one

// How to play
// - One player creates a session and shares the 6-letter code (or QR)
// - Up to six players join by code with a display name
// - Anyone can pause a round; only the host resumes, ends, or restarts
// - Players may resubmit answers until the round ends; the last
//   submission counts
// - If the host leaves, the longest-joined player inherits the session
