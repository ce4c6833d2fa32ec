package mysql

const insertEventSQL = `
INSERT INTO moderation_events
  (id, kind, review_id, listing_id, approved, added, outcome, detail, created_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// Newest first; id breaks ties between events in the same microsecond.
const recentEventsSQL = `
SELECT id, kind, review_id, listing_id, approved, added, outcome, detail, created_at
FROM moderation_events
ORDER BY created_at DESC, id DESC
LIMIT ?
`

// detail is VARCHAR(512); longer backend messages are cut.
const maxDetailLen = 512
