package constants

// DefaultBaseURL is the root of the Papertrail REST API. Resource paths are
// appended to it without a leading slash.
const DefaultBaseURL = "https://papertrailapp.com/api/v1/"

// TokenHeader carries the account API token on every request.
const TokenHeader = "X-Papertrail-Token"

// UserAgent identifies this client to the Papertrail API.
const UserAgent = "papertrail-manager/1.0"
