package sync

import "errors"

// ErrConsistency reports a broken cursor or patch invariant. It marks a
// programming error, not a recoverable runtime condition: callers should
// surface it loudly instead of retrying.
var ErrConsistency = errors.New("sync: consistency violation")
