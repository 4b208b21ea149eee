package ciclient

// queueItem is the subset of /queue/item/{id}/api/json that matters.
type queueItem struct {
	ID         int64        `json:"id"`
	Cancelled  bool         `json:"cancelled"`
	Why        string       `json:"why"`
	Executable *buildNumber `json:"executable"`
}

type buildNumber struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

// buildInfo is the subset of /job/.../{n}/api/json that matters. Result is
// null while the build runs.
type buildInfo struct {
	Number   int     `json:"number"`
	Result   *string `json:"result"`
	Building bool    `json:"building"`
}

type crumbIssuer struct {
	Crumb             string `json:"crumb"`
	CrumbRequestField string `json:"crumbRequestField"`
}
