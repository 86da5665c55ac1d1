package middleware

// SetKeyPrefix lets tests simulate a request that already passed Authenticate.
var SetKeyPrefix = setKeyPrefix
