package modifier

// Exported aliases for testing internal functions from
// modifier_test package.

// StampContextForTest exposes stampContext.
var StampContextForTest = stampContext

// AppendPRLogForTest exposes appendPRLog.
var AppendPRLogForTest = appendPRLog
